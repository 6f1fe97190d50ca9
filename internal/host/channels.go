package host

import (
	"slices"
	"sync"

	"github.com/roach88/rehook/internal/ir"
)

// subscriptions tracks which channel hooks of which instances listen on a
// channel: channel -> instance -> hook ids. A hook listens on at most one
// channel; byHook maps it back so a renamed channel replaces the old entry.
type subscriptions struct {
	mu     sync.RWMutex
	byCh   map[string]map[string]map[ir.HookID]struct{}
	byHook map[hookKey]string
}

type hookKey struct {
	instance string
	hook     ir.HookID
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		byCh:   make(map[string]map[string]map[ir.HookID]struct{}),
		byHook: make(map[hookKey]string),
	}
}

// add subscribes hook to channel, dropping any subscription it held on
// another channel. Subscription effects coalesce per hook, so a rename
// arrives as a single subscribe with no unsubscribe for the old name.
func (s *subscriptions) add(channel, instance string, hook ir.HookID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := hookKey{instance: instance, hook: hook}
	if old, ok := s.byHook[k]; ok && old != channel {
		s.drop(old, instance, hook)
	}
	s.byHook[k] = channel

	insts, ok := s.byCh[channel]
	if !ok {
		insts = make(map[string]map[ir.HookID]struct{})
		s.byCh[channel] = insts
	}
	hooks, ok := insts[instance]
	if !ok {
		hooks = make(map[ir.HookID]struct{})
		insts[instance] = hooks
	}
	hooks[hook] = struct{}{}
}

func (s *subscriptions) remove(channel, instance string, hook ir.HookID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := hookKey{instance: instance, hook: hook}
	if s.byHook[k] == channel {
		delete(s.byHook, k)
	}
	s.drop(channel, instance, hook)
}

func (s *subscriptions) drop(channel, instance string, hook ir.HookID) {
	insts := s.byCh[channel]
	if insts == nil {
		return
	}
	delete(insts[instance], hook)
	if len(insts[instance]) == 0 {
		delete(insts, instance)
	}
	if len(insts) == 0 {
		delete(s.byCh, channel)
	}
}

func (s *subscriptions) removeInstance(instance string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.byHook {
		if k.instance == instance {
			delete(s.byHook, k)
		}
	}
	for ch, insts := range s.byCh {
		delete(insts, instance)
		if len(insts) == 0 {
			delete(s.byCh, ch)
		}
	}
}

// subscribers returns the instances listening on channel, sorted.
func (s *subscriptions) subscribers(channel string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byCh[channel]))
	for inst := range s.byCh[channel] {
		out = append(out, inst)
	}
	slices.Sort(out)
	return out
}
