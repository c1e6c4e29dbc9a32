package worker

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/example/babylog-bot/internal/model"
	"github.com/example/babylog-bot/internal/pool"
)

const (
	memoryAlertPercent = 90.0
	diskAlertPercent   = 95.0
)

// Pinger probes the data store with a trivial round-trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats exposes the connection pool counters.
type PoolStats interface {
	Stats() pool.Stats
}

// LivenessProbe reports whether a dependent loop is still scheduled.
type LivenessProbe interface {
	Name() string
	Running() bool
}

// GatewayProbe verifies notification gateway credentials with a cheap
// metadata call.
type GatewayProbe interface {
	CheckCredentials(ctx context.Context) bool
}

// ModelLister probes the calorie-estimation collaborator by listing
// its models.
type ModelLister interface {
	ListModels(ctx context.Context) (int, error)
}

// HealthService probes the data store, process resource usage, the
// dependent loops and the external collaborators, and logs an alert
// when a critical threshold is crossed. Snapshots are never persisted.
type HealthService struct {
	store  Pinger
	pool   PoolStats
	twilio GatewayProbe
	openai ModelLister
	loops  []LivenessProbe
	log    *zap.Logger
	now    func() time.Time

	memUsage  func() (float64, error)
	diskUsage func() (float64, error)
}

func NewHealthService(store Pinger, poolStats PoolStats, twilio GatewayProbe, openai ModelLister, log *zap.Logger) *HealthService {
	return &HealthService{
		store:  store,
		pool:   poolStats,
		twilio: twilio,
		openai: openai,
		log:    log,
		now:    time.Now,
		memUsage: func() (float64, error) {
			v, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return v.UsedPercent, nil
		},
		diskUsage: func() (float64, error) {
			u, err := disk.Usage("/")
			if err != nil {
				return 0, err
			}
			return u.UsedPercent, nil
		},
	}
}

// WatchLoops registers the dependent loops whose liveness each
// snapshot reports. Called once during wiring, before Start.
func (s *HealthService) WatchLoops(loops ...LivenessProbe) {
	s.loops = append(s.loops, loops...)
}

// RunHealthChecks produces one snapshot, logs it, and raises an alert
// entry for critical conditions.
func (s *HealthService) RunHealthChecks(ctx context.Context) error {
	snap := s.Snapshot(ctx)

	fields := []zap.Field{
		zap.Bool("database_healthy", snap.Database.Healthy),
		zap.Duration("database_latency", snap.Database.Latency),
		zap.Float64("memory_percent", snap.Memory.UsedPercent),
		zap.Float64("disk_percent", snap.Disk.UsedPercent),
	}
	for name, ok := range snap.Services {
		fields = append(fields, zap.Bool(name, ok))
	}
	if s.pool != nil {
		fields = append(fields, zap.Any("pool", s.pool.Stats()))
	}
	s.log.Info("system health check", fields...)

	var critical []string
	if !snap.Database.Healthy {
		critical = append(critical, "database connectivity issues")
	}
	if snap.Memory.UsedPercent > memoryAlertPercent {
		critical = append(critical, "high memory usage")
	}
	if snap.Disk.UsedPercent > diskAlertPercent {
		critical = append(critical, "high disk usage")
	}
	if len(critical) > 0 {
		s.log.Error("critical system issues detected", zap.Strings("issues", critical))
	}
	return nil
}

// Snapshot probes every subsystem once.
func (s *HealthService) Snapshot(ctx context.Context) model.HealthSnapshot {
	snap := model.HealthSnapshot{
		Timestamp: s.now(),
		Services:  map[string]bool{},
	}

	start := time.Now()
	if err := s.store.Ping(ctx); err != nil {
		snap.Database = model.DatabaseHealth{Healthy: false, Err: err.Error()}
	} else {
		snap.Database = model.DatabaseHealth{Healthy: true, Latency: time.Since(start)}
	}

	snap.Memory = usageHealth(s.memUsage, memoryAlertPercent)
	snap.Disk = usageHealth(s.diskUsage, diskAlertPercent)

	for _, l := range s.loops {
		snap.Services[l.Name()] = l.Running()
	}
	if s.twilio != nil {
		snap.Services["twilio_connectivity"] = s.twilio.CheckCredentials(ctx)
	}
	if s.openai != nil {
		n, err := s.openai.ListModels(ctx)
		snap.Services["openai_connectivity"] = err == nil && n > 0
	}
	return snap
}

// usageHealth turns a usage probe into a health reading. A probe that
// cannot report usage counts as healthy rather than failing the check.
func usageHealth(probe func() (float64, error), threshold float64) model.UsageHealth {
	pct, err := probe()
	if err != nil {
		return model.UsageHealth{Healthy: true, Err: err.Error()}
	}
	return model.UsageHealth{Healthy: pct <= threshold, UsedPercent: pct}
}
