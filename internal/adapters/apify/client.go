// internal/adapters/apify/client.go
package apify

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"room_watch/internal/adapters/observability"
	"room_watch/internal/domain"
)

// Client drives the Apify actor-run API: start an actor run, poll its status,
// fetch its dataset. It satisfies domain.ScrapeEngine.
type Client struct {
	base  string
	hc    *http.Client
	token string
	rl    *rate.Limiter
}

func New(base, token string, rps int) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("API token is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		hc:    &http.Client{Timeout: 30 * time.Second},
		token: token,
		rl:    rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var (
	ErrNotFound     = errors.New("apify: not found")
	ErrUnauthorized = errors.New("apify: unauthorized")
)

// runEnvelope is the engine's run object, wrapped in {"data": ...}.
type runEnvelope struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

func (e runEnvelope) handle() domain.JobHandle {
	return domain.JobHandle{
		ID:        e.Data.ID,
		DatasetID: e.Data.DefaultDatasetID,
		Status:    domain.JobStatus(e.Data.Status),
	}
}

// RunJob starts the actor over the seed URLs and returns its handle without
// waiting for completion.
func (c *Client) RunJob(ctx context.Context, actorID string, seedURLs []string, params map[string]any) (domain.JobHandle, error) {
	starts := make([]map[string]string, 0, len(seedURLs))
	for _, u := range seedURLs {
		starts = append(starts, map[string]string{"url": u})
	}
	input := map[string]any{"startUrls": starts}
	for k, v := range params {
		input[k] = v
	}

	u := fmt.Sprintf("%s/v2/acts/%s/runs", c.base, url.PathEscape(actorID))
	var out runEnvelope
	if err := c.do(ctx, http.MethodPost, u, input, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.JobHandle{}, fmt.Errorf("actor was not found: %s", actorID)
		}
		return domain.JobHandle{}, err
	}
	return out.handle(), nil
}

func (c *Client) PollJob(ctx context.Context, jobID string) (domain.JobHandle, error) {
	u := fmt.Sprintf("%s/v2/actor-runs/%s", c.base, url.PathEscape(jobID))
	var out runEnvelope
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return domain.JobHandle{}, err
	}
	return out.handle(), nil
}

func (c *Client) FetchResults(ctx context.Context, datasetID string) ([]map[string]any, error) {
	u := fmt.Sprintf("%s/v2/datasets/%s/items?clean=true", c.base, url.PathEscape(datasetID))
	var out []map[string]any
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do performs one API call with client-side rate limiting, retries on 429 and
// transient 5xx (honoring Retry-After), and JSON decode into out.
func (c *Client) do(ctx context.Context, method, url string, body any, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	start := time.Now()
	var lastErr error
	for i := 0; i < 4; i++ {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", "room-watch/1.0")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}

		observability.ObserveExternal("apify", method, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (200ms, 400ms, 800ms...),
// with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
