package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage"
	"github.com/vietddude/genledger/internal/metrics"
)

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the system's dependencies.
type Monitor struct {
	db         Pinger
	redis      Pinger
	jobs       storage.JobRepository
	stuckAfter time.Duration
	lastCheck  time.Time
	lastReport *Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. db, redis and jobs may each
// be nil when the deployment runs without them.
func NewMonitor(db, redis Pinger, jobs storage.JobRepository, stuckAfter time.Duration) *Monitor {
	if stuckAfter <= 0 {
		stuckAfter = 30 * time.Minute
	}
	return &Monitor{
		db:         db,
		redis:      redis,
		jobs:       jobs,
		stuckAfter: stuckAfter,
	}
}

// CheckHealth performs a health check over all dependencies. The lock
// guards only the cached report, never the pings themselves, so a slow
// dependency cannot stall other callers. Concurrent cache misses may
// probe twice; the last report written wins.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	// Rate limit checks to avoid hammering dependencies
	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		cached := m.lastReport
		m.mu.Unlock()
		return cached
	}
	m.mu.Unlock()

	report := &Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}

	if m.db != nil {
		report.Components["database"] = m.check(ctx, "database", m.db)
	}
	if m.redis != nil {
		report.Components["redis"] = m.check(ctx, "redis", m.redis)
	}

	for _, c := range report.Components {
		if c.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		}
		if c.Status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	if m.jobs != nil {
		cutoff := time.Now().Add(-m.stuckAfter)
		if stuck, err := m.jobs.CountOlderThan(ctx, domain.JobStatusProcessing, cutoff); err == nil {
			report.StuckJobs = stuck
			metrics.StuckJobs.Set(float64(stuck))
			if stuck > 0 && report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
	}

	m.mu.Lock()
	m.lastCheck = time.Now()
	m.lastReport = report
	m.mu.Unlock()
	return report
}

// Start refreshes the report periodically until ctx is done, keeping
// the stuck-jobs gauge current even without health traffic.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckHealth(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context, name string, p Pinger) ComponentHealth {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.Health(checkCtx); err != nil {
		status := StatusCritical
		if name == "redis" {
			// Events are best-effort; losing them degrades, not kills.
			status = StatusDegraded
		}
		return ComponentHealth{Name: name, Status: status, Error: err.Error()}
	}
	return ComponentHealth{Name: name, Status: StatusHealthy}
}
