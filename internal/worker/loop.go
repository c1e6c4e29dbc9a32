// Package worker contains the background control loops: reminder
// dispatch, periodic cleanup and health monitoring, plus the
// supervisor that runs them.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Loop runs a named cycle function on a fixed interval. A cycle error
// (including a recovered panic) is logged and followed by the loop's
// cooldown instead of the regular interval, so a persistently failing
// dependency cannot spin the process. No error terminates the loop.
type Loop struct {
	name     string
	interval time.Duration
	cooldown time.Duration
	cycle    func(ctx context.Context) error
	log      *zap.Logger
	running  atomic.Bool
}

func NewLoop(name string, interval, cooldown time.Duration, cycle func(ctx context.Context) error, log *zap.Logger) *Loop {
	return &Loop{name: name, interval: interval, cooldown: cooldown, cycle: cycle, log: log}
}

func (l *Loop) Name() string            { return l.name }
func (l *Loop) Interval() time.Duration { return l.interval }

// Running reports whether the loop is currently scheduled.
func (l *Loop) Running() bool { return l.running.Load() }

// Run executes cycles until ctx is canceled. The first cycle runs
// immediately.
func (l *Loop) Run(ctx context.Context) {
	l.running.Store(true)
	defer l.running.Store(false)
	l.log.Info("loop started", zap.String("loop", l.name), zap.Duration("interval", l.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for {
		delay := l.interval
		if err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			l.log.Error("loop cycle failed", zap.String("loop", l.name),
				zap.Duration("cooldown", l.cooldown), zap.Error(err))
			delay = l.cooldown
		}
		timer.Reset(delay)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			l.log.Info("loop stopped", zap.String("loop", l.name))
			return
		case <-timer.C:
		}
	}
	l.log.Info("loop stopped", zap.String("loop", l.name))
}

// RunOnce executes a single cycle with panic recovery. It is also the
// entry point for the manual admin triggers.
func (l *Loop) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: cycle panic: %v", l.name, r)
		}
	}()
	return l.cycle(ctx)
}
