package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
)

// CommunityStats is the aggregate shown on the board's landing page.
type CommunityStats struct {
	Users       int64 `json:"users"`
	Posts       int64 `json:"posts"`
	Comments    int64 `json:"comments"`
	OpenTickets int64 `json:"open_tickets"`
	Orders      int64 `json:"orders"`
}

// StatsService computes the community aggregate. The query fans out over five
// tables, which is exactly the kind of read the cache exists for.
type StatsService struct {
	db    *database.Facade
	store cache.Store
	ttl   time.Duration
}

// NewStatsService wires the stats service.
func NewStatsService(db *database.Facade, store cache.Store, ttl time.Duration) (*StatsService, error) {
	if db == nil {
		return nil, errors.New("stats: database facade is required")
	}
	if store == nil {
		return nil, errors.New("stats: cache store is required")
	}
	return &StatsService{db: db, store: store, ttl: ttl}, nil
}

// Community returns the cached aggregate, recomputing on miss.
func (s *StatsService) Community(ctx context.Context) (CommunityStats, error) {
	return cache.Remember(ctx, s.store, KeyCommunityStats, s.ttl, s.compute)
}

func (s *StatsService) compute(ctx context.Context) (CommunityStats, error) {
	stats := CommunityStats{}

	counts := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{&stats.Users, "SELECT COUNT(*) FROM users", nil},
		{&stats.Posts, "SELECT COUNT(*) FROM posts", nil},
		{&stats.Comments, "SELECT COUNT(*) FROM comments", nil},
		{&stats.OpenTickets, "SELECT COUNT(*) FROM tickets WHERE status = ?", []any{"open"}},
		{&stats.Orders, "SELECT COUNT(*) FROM orders", nil},
	}

	for _, c := range counts {
		if _, err := s.db.SelectOne(ctx, c.dest, c.query, c.args...); err != nil {
			return CommunityStats{}, err
		}
	}
	return stats, nil
}

// Producer adapts Community for the maintenance job's cache warmer.
func (s *StatsService) Producer() func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		stats, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(stats)
	}
}
