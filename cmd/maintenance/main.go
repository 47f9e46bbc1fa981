// Command maintenance runs one cache maintenance pass and exits. It is meant
// to be driven by cron or a container scheduler; the server embeds the same
// job on its own schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/noticeboardhq/noticeboard/internal/app"
	"github.com/noticeboardhq/noticeboard/internal/app/maintenance"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
	"github.com/noticeboardhq/noticeboard/internal/services"
	"github.com/noticeboardhq/noticeboard/pkg/logger"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "maintenance failed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return logFailure(cfg, err)
	}
	if err := cfg.Validate(); err != nil {
		return logFailure(cfg, err)
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return logFailure(cfg, err)
	}
	defer logger.Sync()

	store, err := openStore(cfg)
	if err != nil {
		return logFailure(cfg, err)
	}

	opts := []maintenance.Option{maintenance.WithLogPath(cfg.Maintenance.LogPath)}
	if cfg.Maintenance.Warm {
		warmer, cleanup, err := statsWarmer(cfg, store)
		if err != nil {
			return logFailure(cfg, err)
		}
		defer cleanup()
		opts = append(opts, maintenance.WithWarmer(warmer))
	}

	job, err := maintenance.NewJob(store, opts...)
	if err != nil {
		return logFailure(cfg, err)
	}

	report, err := job.RunOnce(ctx)
	if err != nil {
		return logFailure(cfg, err)
	}

	fmt.Println("Cache maintenance completed")
	fmt.Printf("  before: %d total, %d valid, %d expired, %d bytes\n",
		report.InitialStats.TotalEntries, report.InitialStats.ValidEntries,
		report.InitialStats.ExpiredEntries, report.InitialStats.TotalSizeBytes)
	fmt.Printf("  cleaned: %d expired entries\n", report.CleanedEntries)
	fmt.Printf("  after: %d total, %d valid, %d expired, %d bytes\n",
		report.FinalStats.TotalEntries, report.FinalStats.ValidEntries,
		report.FinalStats.ExpiredEntries, report.FinalStats.TotalSizeBytes)
	return nil
}

func openStore(cfg *app.Config) (cache.Store, error) {
	if cfg.Cache.Driver == "redis" {
		return cache.NewRedisStore(cfg.Cache.RedisStoreConfig())
	}
	return cache.NewFileStore(cfg.Cache.Dir)
}

// statsWarmer wires the community stats producer so the pass leaves the
// landing page aggregate hot. The returned cleanup closes the database.
func statsWarmer(cfg *app.Config, store cache.Store) (maintenance.Warmer, func(), error) {
	db, err := database.Open(cfg.Database.DatabaseOpenConfig())
	if err != nil {
		return maintenance.Warmer{}, nil, fmt.Errorf("open database: %w", err)
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	facade, err := database.NewFacade(db)
	if err != nil {
		cleanup()
		return maintenance.Warmer{}, nil, err
	}
	stats, err := services.NewStatsService(facade, store, cfg.Cache.DefaultTTL)
	if err != nil {
		cleanup()
		return maintenance.Warmer{}, nil, err
	}

	return maintenance.Warmer{
		Key:     services.KeyCommunityStats,
		TTL:     cfg.Cache.DefaultTTL,
		Produce: stats.Producer(),
	}, cleanup, nil
}

// logFailure appends the failure to the error log before the process exits
// non-zero, so unattended runs leave a trail even without stderr capture.
func logFailure(cfg *app.Config, failure error) error {
	path := "./data/maintenance-error.log"
	if cfg != nil && cfg.Maintenance.ErrorLogPath != "" {
		path = cfg.Maintenance.ErrorLogPath
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return failure
	}
	defer f.Close()

	fmt.Fprintf(f, "[%s] Cache maintenance error: %v\n",
		time.Now().Format("2006-01-02 15:04:05"), failure)
	return failure
}
