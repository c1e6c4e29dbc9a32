package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeGateway struct{ ok bool }

func (f *fakeGateway) CheckCredentials(ctx context.Context) bool { return f.ok }

type fakeModelLister struct {
	n   int
	err error
}

func (f *fakeModelLister) ListModels(ctx context.Context) (int, error) { return f.n, f.err }

type fakeProbe struct {
	name    string
	running bool
}

func (f *fakeProbe) Name() string  { return f.name }
func (f *fakeProbe) Running() bool { return f.running }

func newHealthService(store Pinger) *HealthService {
	svc := NewHealthService(store, nil, nil, nil, zap.NewNop())
	svc.memUsage = func() (float64, error) { return 40, nil }
	svc.diskUsage = func() (float64, error) { return 50, nil }
	return svc
}

func TestSnapshot_AllHealthy(t *testing.T) {
	svc := newHealthService(&fakePinger{})
	svc.twilio = &fakeGateway{ok: true}
	svc.openai = &fakeModelLister{n: 12}
	svc.WatchLoops(&fakeProbe{name: "reminder_scheduler", running: true})

	snap := svc.Snapshot(context.Background())

	if !snap.Database.Healthy {
		t.Errorf("database healthy = false, want true")
	}
	if !snap.Memory.Healthy || snap.Memory.UsedPercent != 40 {
		t.Errorf("memory = %+v, want healthy at 40%%", snap.Memory)
	}
	if !snap.Disk.Healthy || snap.Disk.UsedPercent != 50 {
		t.Errorf("disk = %+v, want healthy at 50%%", snap.Disk)
	}
	for _, name := range []string{"reminder_scheduler", "twilio_connectivity", "openai_connectivity"} {
		if !snap.Services[name] {
			t.Errorf("service %q = false, want true (services: %v)", name, snap.Services)
		}
	}
}

func TestSnapshot_DatabaseDown(t *testing.T) {
	svc := newHealthService(&fakePinger{err: errors.New("refused")})
	snap := svc.Snapshot(context.Background())

	if snap.Database.Healthy {
		t.Error("database healthy = true, want false")
	}
	if snap.Database.Err == "" {
		t.Error("database error is empty, want the probe failure")
	}
}

func TestSnapshot_UsageThresholds(t *testing.T) {
	svc := newHealthService(&fakePinger{})
	svc.memUsage = func() (float64, error) { return 92, nil }
	svc.diskUsage = func() (float64, error) { return 96, nil }

	snap := svc.Snapshot(context.Background())
	if snap.Memory.Healthy {
		t.Errorf("memory at %.0f%% reported healthy", snap.Memory.UsedPercent)
	}
	if snap.Disk.Healthy {
		t.Errorf("disk at %.0f%% reported healthy", snap.Disk.UsedPercent)
	}
}

func TestSnapshot_ProbeFailureCountsHealthy(t *testing.T) {
	svc := newHealthService(&fakePinger{})
	svc.memUsage = func() (float64, error) { return 0, errors.New("unsupported") }

	snap := svc.Snapshot(context.Background())
	if !snap.Memory.Healthy {
		t.Error("memory healthy = false, want true when the platform probe fails")
	}
	if snap.Memory.Err == "" {
		t.Error("memory error is empty, want the probe failure recorded")
	}
}

func TestSnapshot_CollaboratorFailures(t *testing.T) {
	svc := newHealthService(&fakePinger{})
	svc.twilio = &fakeGateway{ok: false}
	svc.openai = &fakeModelLister{err: errors.New("401")}
	svc.WatchLoops(&fakeProbe{name: "cleanup_service", running: false})

	snap := svc.Snapshot(context.Background())
	for _, name := range []string{"twilio_connectivity", "openai_connectivity", "cleanup_service"} {
		if snap.Services[name] {
			t.Errorf("service %q = true, want false", name)
		}
	}
}

func TestRunHealthChecks_NeverReturnsError(t *testing.T) {
	svc := newHealthService(&fakePinger{err: errors.New("refused")})
	svc.memUsage = func() (float64, error) { return 99, nil }

	if err := svc.RunHealthChecks(context.Background()); err != nil {
		t.Fatalf("RunHealthChecks: %v, want nil (alerts are logged, not returned)", err)
	}
}

func TestSnapshot_Timestamp(t *testing.T) {
	svc := newHealthService(&fakePinger{})
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if got := svc.Snapshot(context.Background()).Timestamp; !got.Equal(now) {
		t.Errorf("timestamp = %v, want %v", got, now)
	}
}
