package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/pkg/logger"
	"github.com/noticeboardhq/noticeboard/pkg/metrics"
)

const (
	defaultSchedule = "@hourly"
	timestampLayout = "2006-01-02 15:04:05"
)

// Warmer pre-populates one known-hot key during maintenance so the first
// request after a cleanup does not pay the producer's cost.
type Warmer struct {
	Key     string
	TTL     time.Duration
	Produce func(ctx context.Context) ([]byte, error)
}

// Report captures one maintenance run for the append-only log.
type Report struct {
	Timestamp      string      `json:"timestamp"`
	Action         string      `json:"action"`
	CleanedEntries int         `json:"cleaned_entries"`
	InitialStats   cache.Stats `json:"initial_stats"`
	FinalStats     cache.Stats `json:"final_stats"`
}

// Job purges expired cache entries on a fixed schedule and records
// before/after statistics. Overlapping runs are safe: the store's per-entry
// operations are atomic, so no job-level lock is taken.
type Job struct {
	store    cache.Store
	cron     *cron.Cron
	schedule string
	now      func() time.Time
	logPath  string
	warmers  []Warmer
	log      *zap.Logger
}

// Option customises the Job.
type Option func(*Job)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(j *Job) {
		if c != nil {
			j.cron = c
		}
	}
}

// WithNow overrides the clock used for log timestamps.
func WithNow(now func() time.Time) Option {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}

// WithSchedule overrides the cron specification for scheduled runs.
func WithSchedule(spec string) Option {
	return func(j *Job) {
		if spec != "" {
			j.schedule = spec
		}
	}
}

// WithLogPath sets the append-only maintenance log. Empty disables logging to file.
func WithLogPath(path string) Option {
	return func(j *Job) {
		j.logPath = path
	}
}

// WithWarmer registers a hot key to repopulate after cleanup.
func WithWarmer(w Warmer) Option {
	return func(j *Job) {
		if w.Key != "" && w.Produce != nil {
			j.warmers = append(j.warmers, w)
		}
	}
}

// NewJob constructs a maintenance job over the shared store.
func NewJob(store cache.Store, opts ...Option) (*Job, error) {
	if store == nil {
		return nil, errors.New("maintenance: store is required")
	}

	j := &Job{
		store:    store,
		schedule: defaultSchedule,
		now:      time.Now,
		log:      logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.cron == nil {
		j.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return j, nil
}

// Start registers the scheduled run and launches the scheduler.
func (j *Job) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.log.Warn("scheduled maintenance failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	j.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running job to complete.
func (j *Job) Stop() context.Context {
	if j.cron == nil {
		return context.Background()
	}
	return j.cron.Stop()
}

// RunOnce executes one maintenance pass: snapshot, cleanup, warm, snapshot,
// append a log record. Cleanup commits entry-by-entry, so a failure part way
// through leaves no inconsistent state beyond what was already removed.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	report := Report{
		Timestamp: j.now().Format(timestampLayout),
		Action:    "cache_maintenance",
	}

	initial, err := j.store.Stats(ctx)
	if err != nil {
		metrics.MaintenanceRuns.WithLabelValues("failure").Inc()
		return report, fmt.Errorf("maintenance: initial stats: %w", err)
	}
	report.InitialStats = initial

	cleaned, err := j.store.Cleanup(ctx)
	if err != nil {
		metrics.MaintenanceRuns.WithLabelValues("failure").Inc()
		return report, fmt.Errorf("maintenance: cleanup: %w", err)
	}
	report.CleanedEntries = cleaned

	if _, err := j.Warm(ctx); err != nil {
		j.log.Warn("cache warm incomplete", zap.Error(err))
	}

	final, err := j.store.Stats(ctx)
	if err != nil {
		metrics.MaintenanceRuns.WithLabelValues("failure").Inc()
		return report, fmt.Errorf("maintenance: final stats: %w", err)
	}
	report.FinalStats = final

	if err := j.appendRecord(report); err != nil {
		metrics.MaintenanceRuns.WithLabelValues("failure").Inc()
		return report, err
	}

	metrics.MaintenanceRuns.WithLabelValues("success").Inc()
	j.log.Info("maintenance completed",
		zap.Int("cleaned_entries", cleaned),
		zap.Int("valid_entries", final.ValidEntries),
	)
	return report, nil
}

// Warm repopulates registered hot keys and returns the keys written. A failed
// producer only costs the next reader a miss, so the pass continues past
// individual failures and reports them together.
func (j *Job) Warm(ctx context.Context) ([]string, error) {
	warmed := make([]string, 0, len(j.warmers))
	var errs error
	for _, w := range j.warmers {
		value, err := w.Produce(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("produce %q: %w", w.Key, err))
			continue
		}
		if err := j.store.Set(ctx, w.Key, value, w.TTL); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("store %q: %w", w.Key, err))
			continue
		}
		warmed = append(warmed, w.Key)
	}
	return warmed, errs
}

// appendRecord writes one JSON object per line to the maintenance log.
func (j *Job) appendRecord(report Report) error {
	if j.logPath == "" {
		return nil
	}

	if dir := filepath.Dir(j.logPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("maintenance: create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(j.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("maintenance: open log: %w", err)
	}
	defer f.Close()

	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("maintenance: encode record: %w", err)
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("maintenance: append record: %w", err)
	}
	return nil
}
