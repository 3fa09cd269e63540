package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage/memory"
)

type mockPinger struct {
	err error
}

func (p *mockPinger) Health(ctx context.Context) error {
	return p.err
}

func TestCheckHealthAllHealthy(t *testing.T) {
	m := NewMonitor(&mockPinger{}, &mockPinger{}, memory.NewJobRepo(memory.NewMemoryStorage()), time.Hour)

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("SystemStatus = %s, want healthy", report.SystemStatus)
	}
	if len(report.Components) != 2 {
		t.Errorf("components = %d, want 2", len(report.Components))
	}
}

func TestCheckHealthDatabaseDownIsCritical(t *testing.T) {
	m := NewMonitor(&mockPinger{err: errors.New("refused")}, nil, nil, time.Hour)

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("SystemStatus = %s, want critical", report.SystemStatus)
	}
}

func TestCheckHealthRedisDownOnlyDegrades(t *testing.T) {
	m := NewMonitor(&mockPinger{}, &mockPinger{err: errors.New("refused")}, nil, time.Hour)

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("SystemStatus = %s, want degraded (events are best-effort)", report.SystemStatus)
	}
}

func TestCheckHealthCountsStuckJobs(t *testing.T) {
	store := memory.NewMemoryStorage()
	jobs := memory.NewJobRepo(store)
	_ = jobs.Create(context.Background(), &domain.Job{
		ID:        "j1",
		AccountID: "acct-1",
		Status:    domain.JobStatusProcessing,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	})

	m := NewMonitor(&mockPinger{}, nil, jobs, time.Hour)
	report := m.CheckHealth(context.Background())
	if report.StuckJobs != 1 {
		t.Errorf("StuckJobs = %d, want 1", report.StuckJobs)
	}
	if report.SystemStatus != StatusDegraded {
		t.Errorf("SystemStatus = %s, want degraded with stuck jobs present", report.SystemStatus)
	}
}

// gatePinger blocks inside Health until released, signalling each entry.
type gatePinger struct {
	arrived chan struct{}
	release chan struct{}
}

func (p *gatePinger) Health(ctx context.Context) error {
	p.arrived <- struct{}{}
	<-p.release
	return nil
}

func TestCheckHealthDoesNotSerializeBehindSlowPing(t *testing.T) {
	p := &gatePinger{arrived: make(chan struct{}), release: make(chan struct{})}
	m := NewMonitor(p, nil, nil, time.Hour)

	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			m.CheckHealth(context.Background())
			done <- struct{}{}
		}()
	}

	// Both callers must reach the ping concurrently; a caller stuck
	// behind the other's in-flight probe would never arrive.
	for i := 0; i < 2; i++ {
		select {
		case <-p.arrived:
		case <-time.After(2 * time.Second):
			t.Fatal("health check serialized behind a slow dependency ping")
		}
	}

	close(p.release)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("CheckHealth did not return after the ping released")
		}
	}
}

func TestCheckHealthRateLimited(t *testing.T) {
	p := &mockPinger{}
	m := NewMonitor(p, nil, nil, time.Hour)

	first := m.CheckHealth(context.Background())

	// A dependency failure within the rate-limit window is not observed.
	p.err = errors.New("refused")
	second := m.CheckHealth(context.Background())
	if second != first {
		t.Error("expected the cached report inside the rate-limit window")
	}
}
