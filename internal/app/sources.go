package app

import (
	"context"
	"strings"

	"room_watch/internal/domain"
)

// SourceService manages tracked URLs. Ownership checks belong to the API
// layer; identifiers arriving here are assumed authorized.
type SourceService struct {
	repo domain.ListingRepository
}

func NewSourceService(repo domain.ListingRepository) *SourceService {
	return &SourceService{repo: repo}
}

// Track registers a listing URL for watching. The URL is canonicalized to its
// room form when a room id can be extracted.
func (s *SourceService) Track(ctx context.Context, url string) (domain.TrackedURL, error) {
	url = strings.TrimSpace(url)
	if id, ok := ExtractRoomID(url); ok && !strings.HasPrefix(url, "http") {
		url = BuildRoomURL(id)
	}
	return s.repo.CreateTrackedURL(ctx, url)
}

func (s *SourceService) Get(ctx context.Context, id int64) (domain.TrackedURL, error) {
	return s.repo.GetTrackedURL(ctx, id)
}

func (s *SourceService) List(ctx context.Context) ([]domain.TrackedURL, error) {
	return s.repo.ListTrackedURLs(ctx, false)
}

func (s *SourceService) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.repo.SetTrackedURLEnabled(ctx, id, enabled)
}
