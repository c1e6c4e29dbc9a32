package model

import "time"

// HealthSnapshot is produced by the health loop each cycle and
// discarded after logging. It is never persisted.
type HealthSnapshot struct {
	Timestamp time.Time
	Database  DatabaseHealth
	Memory    UsageHealth
	Disk      UsageHealth
	Services  map[string]bool
}

// DatabaseHealth reports store reachability and round-trip latency.
type DatabaseHealth struct {
	Healthy bool
	Latency time.Duration
	Err     string
}

// UsageHealth reports a resource usage percentage. When the platform
// cannot report usage the probe counts as healthy.
type UsageHealth struct {
	Healthy     bool
	UsedPercent float64
	Err         string
}
