// Package scheduler is the Scheduler & Dispatcher component: a 1-second
// tick that claims due job definitions and dispatches them to every
// required agent that is currently connected.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/server/internal/metrics"
	"github.com/actiondispatch/dispatch/server/internal/registry"
	"github.com/actiondispatch/dispatch/server/internal/store"
	"github.com/actiondispatch/dispatch/shared/model"
	"github.com/actiondispatch/dispatch/shared/wire"
)

// DispatchInterval is the fixed tick cadence at which due jobs are claimed
// and dispatched.
const DispatchInterval = 1 * time.Second

// Scheduler claims due jobs from the store and dispatches them over the
// Registry's connections. It does not track connections itself — it reads
// the currently-connected agent names from Registry on every tick.
type Scheduler struct {
	store    *store.Store
	registry *registry.Registry
	logger   *zap.Logger
	cron     gocron.Scheduler
}

// New creates a Scheduler. Call Start to begin the dispatch tick.
func New(st *store.Store, reg *registry.Registry, logger *zap.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create scheduler: %w", err)
	}
	return &Scheduler{
		store:    st,
		registry: reg,
		logger:   logger.Named("scheduler"),
		cron:     cron,
	}, nil
}

// Start schedules the dispatch tick, run in singleton mode so a slow tick
// never overlaps the next one.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(DispatchInterval),
		gocron.NewTask(func() { s.tick(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: schedule dispatch: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("dispatch_interval", DispatchInterval))
	return nil
}

// Stop shuts down the underlying gocron scheduler.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// tick runs one dispatch cycle: claim due jobs, then dispatch every Running
// job whose agents_running is still empty.
func (s *Scheduler) tick(ctx context.Context) {
	online := s.registry.ConnectedNames()
	if len(online) == 0 {
		return
	}

	if err := s.claim(ctx, online); err != nil {
		s.logger.Warn("claim failed", zap.Error(err))
		return
	}

	jobs, err := s.store.Jobs.Find(ctx, bson.M{
		"status":         model.JobStatusRunning,
		"agents_running": bson.M{"$size": 0},
	})
	if err != nil {
		s.logger.Warn("failed to load claimed jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		s.dispatch(ctx, job, online)
	}
}

// claim atomically flips every Pending, due job whose agents_required
// intersects the online set to Running. This is the first phase of the
// two-phase claim: a job claimed here but not yet dispatched (because the
// coordinator crashed between claim and dispatch) is picked up again by the
// second phase's agents_running-empty query on the next tick.
func (s *Scheduler) claim(ctx context.Context, online []string) error {
	now := time.Now().Unix()
	_, err := s.store.Jobs.UpdateMany(ctx, bson.M{
		"status":          model.JobStatusPending,
		"next_run":        bson.M{"$lte": now},
		"agents_running":  bson.M{"$size": 0},
		"agents_required": bson.M{"$in": online},
	}, bson.M{"$set": bson.M{"status": model.JobStatusRunning}})
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	return nil
}

// dispatch sends job to every required agent that is currently connected.
// An agent that is required but not online is skipped. Once at least one
// agent has been recorded in agents_running, tick no longer fetches the
// job, so a skipped agent is not dispatched to later even if it
// reconnects; the job stays Running with a partial agents_running set.
func (s *Scheduler) dispatch(ctx context.Context, job model.Job, online []string) {
	onlineSet := make(map[string]struct{}, len(online))
	for _, name := range online {
		onlineSet[name] = struct{}{}
	}

	for _, agentName := range job.AgentsRequired {
		if _, ok := onlineSet[agentName]; !ok {
			continue
		}
		alreadyRunning := false
		for _, running := range job.AgentsRunning {
			if running == agentName {
				alreadyRunning = true
				break
			}
		}
		if alreadyRunning {
			continue
		}

		name := agentName
		msg := wire.DispatchJob{
			JobName:          job.Name,
			Command:          job.Command,
			Args:             joinArgs(job.Args),
			AgentName:        &name,
			ValidReturnCodes: job.ValidReturnCodes,
		}
		metrics.DispatchAttempts.Inc()
		if err := s.registry.SendToAgent(agentName, msg); err != nil {
			s.logger.Warn("dispatch failed", zap.String("job", job.Name), zap.String("agent", agentName), zap.Error(err))
			continue
		}
		metrics.DispatchSuccesses.Inc()
		if _, err := s.store.Jobs.UpdateOne(ctx, bson.M{"name": job.Name}, bson.M{"$addToSet": bson.M{"agents_running": agentName}}); err != nil {
			s.logger.Warn("failed to record dispatch", zap.String("job", job.Name), zap.String("agent", agentName), zap.Error(err))
			continue
		}
		s.logger.Info("dispatched", zap.String("job", job.Name), zap.String("agent", agentName))
	}
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
