package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

// DefaultRefreshSchedule reloads roles and assignments every five minutes.
const DefaultRefreshSchedule = "@every 5m"

// Refresher periodically reloads the engine's stores and publishes
// EventAssignmentsChanged when the assignments differ from the previous run.
type Refresher struct {
	engine   *Engine
	notifier *Notifier
	logger   *observability.Logger
	cron     *cron.Cron
	timeout  time.Duration
}

// NewRefresher schedules engine reloads. timeout bounds each run; zero means one minute.
func NewRefresher(engine *Engine, notifier *Notifier, schedule string, timeout time.Duration, logger *observability.Logger) (*Refresher, error) {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	r := &Refresher{
		engine:   engine,
		notifier: notifier,
		logger:   observability.OrNop(logger).Component("refresher"),
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout:  timeout,
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins the schedule in the background.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running reload finishes.
func (r *Refresher) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.WithError(err).Warn("scheduled refresh failed")
	}
}

// RunOnce reloads immediately and reports whether the assignments changed.
func (r *Refresher) RunOnce(ctx context.Context) (bool, error) {
	before := r.engine.Assignments.Fingerprint()
	if err := r.engine.Reload(ctx); err != nil {
		return false, err
	}
	if r.engine.Assignments.Fingerprint() == before {
		return false, nil
	}

	r.logger.Info("role assignments changed")
	if r.notifier != nil {
		r.notifier.Publish(Event{Kind: EventAssignmentsChanged})
	}
	return true, nil
}
