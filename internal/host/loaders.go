package host

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
)

type loadKey struct {
	instance string
	hook     ir.HookID
}

// loadJob is one background loader execution.
type loadJob struct {
	key    loadKey
	app    *engine.Engine
	snap   ir.Snapshot
	props  ir.Object
	rq     ir.Requeue
	ctx    context.Context
	cancel context.CancelFunc
}

// loaderSet tracks in-flight loaders so a newer request for the same hook
// cancels the older one, and removing an instance cancels all of its loads.
type loaderSet struct {
	mu       sync.Mutex
	inflight map[loadKey]*loadJob
}

func newLoaderSet() *loaderSet {
	return &loaderSet{inflight: make(map[loadKey]*loadJob)}
}

// begin registers job with a context derived from parent. It returns false
// when the same request is already running; a different request for the
// same hook is cancelled and replaced.
func (s *loaderSet) begin(parent context.Context, timeout time.Duration, job *loadJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.inflight[job.key]; ok {
		if cur.rq.RequestID == job.rq.RequestID {
			return false
		}
		cur.cancel()
	}
	job.ctx, job.cancel = context.WithTimeout(parent, timeout)
	s.inflight[job.key] = job
	return true
}

// end releases job. It is a no-op for a job that was already superseded.
func (s *loaderSet) end(job *loadJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.cancel()
	if s.inflight[job.key] == job {
		delete(s.inflight, job.key)
	}
}

func (s *loaderSet) cancel(key loadKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.inflight[key]; ok {
		cur.cancel()
		delete(s.inflight, key)
	}
}

func (s *loaderSet) cancelInstance(instance string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, job := range s.inflight {
		if k.instance == instance {
			job.cancel()
			delete(s.inflight, k)
		}
	}
}

func (s *loaderSet) running(key loadKey) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.inflight[key]
	if !ok {
		return "", false
	}
	return job.rq.RequestID, true
}
