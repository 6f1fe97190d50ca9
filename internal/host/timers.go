package host

import (
	"sync"
	"time"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/metric"
)

type timerKey struct {
	instance string
	target   ir.HookID
}

type armedTimer struct {
	every time.Duration
	stop  chan struct{}
}

// timerSet arms real tickers for running interval hooks. Each tick calls
// fire, which enqueues a timer-fire event; the engine decides whether the
// tick still matters.
type timerSet struct {
	mu      sync.Mutex
	armed   map[timerKey]*armedTimer
	fire    func(timerKey)
	metrics *metric.Metrics
}

func newTimerSet(fire func(timerKey), m *metric.Metrics) *timerSet {
	return &timerSet{armed: make(map[timerKey]*armedTimer), fire: fire, metrics: m}
}

// arm starts a ticker for k. Re-arming with the same period keeps the
// existing ticker so its phase is not reset.
func (s *timerSet) arm(k timerKey, every time.Duration) {
	if every <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.armed[k]; ok {
		if t.every == every {
			return
		}
		close(t.stop)
		s.metrics.AddTimers(-1)
	}
	t := &armedTimer{every: every, stop: make(chan struct{})}
	s.armed[k] = t
	s.metrics.AddTimers(1)

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.fire(k)
			case <-t.stop:
				return
			}
		}
	}()
}

func (s *timerSet) clear(k timerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(k)
}

func (s *timerSet) clearLocked(k timerKey) {
	if t, ok := s.armed[k]; ok {
		close(t.stop)
		delete(s.armed, k)
		s.metrics.AddTimers(-1)
	}
}

func (s *timerSet) clearInstance(instance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.armed {
		if k.instance == instance {
			s.clearLocked(k)
		}
	}
}

func (s *timerSet) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.armed {
		s.clearLocked(k)
	}
}

func (s *timerSet) isArmed(k timerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.armed[k]
	return ok
}
