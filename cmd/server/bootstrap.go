package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/noticeboardhq/noticeboard/internal/api"
	"github.com/noticeboardhq/noticeboard/internal/app"
	"github.com/noticeboardhq/noticeboard/internal/app/maintenance"
	iauth "github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
	"github.com/noticeboardhq/noticeboard/internal/services"
)

// runtimeStack bundles long-lived services used by the HTTP server. Every
// dependency is constructed here and injected; nothing reads ambient globals.
type runtimeStack struct {
	DB     *gorm.DB
	Store  cache.Store
	Job    *maintenance.Job
	Router *gin.Engine
}

// bootstrapRuntime initialises the database, cache store, services, the
// maintenance scheduler and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.Database.DatabaseOpenConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	stack.DB = db

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	facade, err := database.NewFacade(db)
	if err != nil {
		return nil, err
	}

	stack.Store, err = buildCacheStore(cfg, log)
	if err != nil {
		return nil, err
	}

	inv := cache.NewInvalidator(stack.Store, services.InvalidationRules())

	ttl := cfg.Cache.DefaultTTL
	svcs := api.Services{}
	if svcs.Users, err = services.NewUserService(facade, stack.Store, inv, ttl); err != nil {
		return nil, err
	}
	if svcs.Posts, err = services.NewPostService(facade, stack.Store, inv, ttl); err != nil {
		return nil, err
	}
	if svcs.Tickets, err = services.NewTicketService(facade, stack.Store, inv, ttl); err != nil {
		return nil, err
	}
	if svcs.Products, err = services.NewProductService(facade, stack.Store, inv, ttl); err != nil {
		return nil, err
	}
	if svcs.Stats, err = services.NewStatsService(facade, stack.Store, ttl); err != nil {
		return nil, err
	}

	jobOpts := []maintenance.Option{
		maintenance.WithSchedule(cfg.Maintenance.Schedule),
		maintenance.WithLogPath(cfg.Maintenance.LogPath),
	}
	if cfg.Maintenance.Warm {
		jobOpts = append(jobOpts, maintenance.WithWarmer(maintenance.Warmer{
			Key:     services.KeyCommunityStats,
			TTL:     ttl,
			Produce: svcs.Stats.Producer(),
		}))
	}
	stack.Job, err = maintenance.NewJob(stack.Store, jobOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise maintenance job: %w", err)
	}
	if cfg.Maintenance.Enabled {
		if err := stack.Job.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance job: %w", err)
		}
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.JWTIssuer,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Router, err = api.NewRouter(db, jwtSvc, cfg, svcs, stack.Store, inv, stack.Job)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	success = true
	return stack, nil
}

// buildCacheStore selects the configured cache backend.
func buildCacheStore(cfg *app.Config, log *zap.Logger) (cache.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Cache.Driver)) {
	case "", "file":
		store, err := cache.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		log.Info("file cache ready", zap.String("dir", cfg.Cache.Dir))
		return store, nil
	case "redis":
		store, err := cache.NewRedisStore(cfg.Cache.RedisStoreConfig())
		if err != nil {
			return nil, err
		}
		log.Info("redis cache connected", zap.String("addr", cfg.Cache.Redis.Address))
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Cache.Driver)
	}
}

// Shutdown tears the stack down in reverse construction order.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Job != nil {
		stopped := s.Job.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
			log.Warn("maintenance job stop timed out")
		}
	}

	if rc, ok := s.Store.(*cache.RedisStore); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("close redis", zap.Error(err))
		}
	}

	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn("close database", zap.Error(err))
			}
		}
	}
}
