package cron

import (
	"context"
	"log/slog"
	"time"
)

// SessionPruner is the web-session store as seen by SessionPruneJob.
type SessionPruner interface {
	Prune(maxIdle time.Duration) int
	Len() int
}

// LimiterPruner drops idle rate-limit buckets.
type LimiterPruner interface {
	Prune() int
}

// SessionPruneJob removes web sessions idle longer than MaxIdle.
type SessionPruneJob struct {
	Store   SessionPruner
	Limiter LimiterPruner // optional
	MaxIdle time.Duration
	Logger  *slog.Logger

	// OnPrune, if set, receives how many sessions were dropped and how many
	// are left.
	OnPrune func(pruned, remaining int)
}

var _ Job = (*SessionPruneJob)(nil)

// Name implements Job.
func (j *SessionPruneJob) Name() string { return "sessions.prune" }

// Schedule implements Job.
func (j *SessionPruneJob) Schedule() string { return "*/5 * * * *" }

// Run implements Job.
func (j *SessionPruneJob) Run(_ context.Context) error {
	pruned := j.Store.Prune(j.MaxIdle)
	if j.Limiter != nil {
		j.Limiter.Prune()
	}
	if pruned > 0 {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned)
	}
	if j.OnPrune != nil {
		j.OnPrune(pruned, j.Store.Len())
	}
	return nil
}

// HistoryResyncer is the history store as seen by HistoryResyncJob.
type HistoryResyncer interface {
	Stale() bool
	Resync(ctx context.Context) bool
}

// HistoryResyncJob re-flushes the in-memory history after a failed or
// skipped save, once the storage medium is back.
type HistoryResyncJob struct {
	History HistoryResyncer
	Logger  *slog.Logger
}

var _ Job = (*HistoryResyncJob)(nil)

// Name implements Job.
func (j *HistoryResyncJob) Name() string { return "history.resync" }

// Schedule implements Job.
func (j *HistoryResyncJob) Schedule() string { return "* * * * *" }

// Run implements Job. A medium that is still unavailable is not an error.
func (j *HistoryResyncJob) Run(ctx context.Context) error {
	if !j.History.Stale() {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if j.History.Resync(ctx) {
		j.Logger.Info("cron: history resynced")
	} else {
		j.Logger.Debug("cron: history storage still unavailable")
	}
	return nil
}
