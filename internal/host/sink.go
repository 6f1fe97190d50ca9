package host

import (
	"sync"

	"github.com/roach88/rehook/internal/engine"
)

// Sink receives every committed response. Publish is called with the
// instance lock held, in seq order, and must not block.
type Sink interface {
	Publish(instance string, resp *engine.Response)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(instance string, resp *engine.Response)

// Publish implements Sink.
func (f SinkFunc) Publish(instance string, resp *engine.Response) { f(instance, resp) }

// fanout publishes to every registered sink.
type fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

func (f *fanout) add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

func (f *fanout) Publish(instance string, resp *engine.Response) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.Publish(instance, resp)
	}
}
