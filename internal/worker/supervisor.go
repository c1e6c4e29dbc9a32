package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LoopStatus is the externally visible state of one loop.
type LoopStatus struct {
	Running         bool `json:"running"`
	IntervalSeconds int  `json:"interval"`
}

// Supervisor starts and stops the background loops as a unit. Shutdown
// is cooperative: each loop finishes its current cycle, and a loop
// that does not stop within the join timeout is abandoned so process
// exit is never blocked.
type Supervisor struct {
	log         *zap.Logger
	loops       []*Loop
	stopTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(log *zap.Logger, loops ...*Loop) *Supervisor {
	return &Supervisor{log: log, loops: loops, stopTimeout: 5 * time.Second}
}

// Start launches every loop as an independent background task.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, l := range s.loops {
		s.wg.Add(1)
		go func(l *Loop) {
			defer s.wg.Done()
			l.Run(ctx)
		}(l)
	}
	s.log.Info("background services started", zap.Int("loops", len(s.loops)))
}

// Stop signals every loop and waits up to the join timeout.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("background services stopped")
	case <-time.After(s.stopTimeout):
		s.log.Warn("background services did not stop in time, abandoning",
			zap.Duration("timeout", s.stopTimeout))
	}
}

// Status snapshots every loop's running state and interval.
func (s *Supervisor) Status() map[string]LoopStatus {
	out := make(map[string]LoopStatus, len(s.loops))
	for _, l := range s.loops {
		out[l.Name()] = LoopStatus{
			Running:         l.Running(),
			IntervalSeconds: int(l.Interval() / time.Second),
		}
	}
	return out
}

// Loop returns the named loop, or nil.
func (s *Supervisor) Loop(name string) *Loop {
	for _, l := range s.loops {
		if l.Name() == name {
			return l
		}
	}
	return nil
}
