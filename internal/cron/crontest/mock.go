// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/chatgate/internal/cron"
)

var (
	_ cron.Job             = (*MockJob)(nil)
	_ cron.SessionPruner   = (*MockSessionStore)(nil)
	_ cron.HistoryResyncer = (*MockHistory)(nil)
)

// MockJob counts its runs and delegates to RunFunc when set.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	calls atomic.Int32
}

func (m *MockJob) Name() string     { return m.NameVal }
func (m *MockJob) Schedule() string { return m.ScheduleVal }

func (m *MockJob) Run(ctx context.Context) error {
	m.calls.Add(1)
	if m.RunFunc == nil {
		return nil
	}
	return m.RunFunc(ctx)
}

// CallCount reports how many times Run was called.
func (m *MockJob) CallCount() int { return int(m.calls.Load()) }

// MockSessionStore stands in for the web session store.
type MockSessionStore struct {
	PruneFunc func(maxIdle time.Duration) int
	Remaining int

	mu      sync.Mutex
	maxIdle []time.Duration
}

func (m *MockSessionStore) Prune(maxIdle time.Duration) int {
	m.mu.Lock()
	m.maxIdle = append(m.maxIdle, maxIdle)
	m.mu.Unlock()
	if m.PruneFunc == nil {
		return 0
	}
	return m.PruneFunc(maxIdle)
}

func (m *MockSessionStore) Len() int { return m.Remaining }

// PruneCalls reports how many times Prune was called.
func (m *MockSessionStore) PruneCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.maxIdle)
}

// MockHistory stands in for the history store. A successful Resync clears
// the stale flag, as the real store does.
type MockHistory struct {
	ResyncOK bool

	stale  atomic.Bool
	resync atomic.Int32
}

// SetStale marks the history as needing a resync.
func (m *MockHistory) SetStale(v bool) { m.stale.Store(v) }

func (m *MockHistory) Stale() bool { return m.stale.Load() }

func (m *MockHistory) Resync(context.Context) bool {
	m.resync.Add(1)
	if m.ResyncOK {
		m.stale.Store(false)
	}
	return m.ResyncOK
}

// ResyncCalls reports how many times Resync was called.
func (m *MockHistory) ResyncCalls() int { return int(m.resync.Load()) }
