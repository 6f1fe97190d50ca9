package engine

import (
	"github.com/roach88/rehook/internal/ir"
)

// emitter collects the effects of one cycle in visiting order.
//
// Effects in a coalescable family (timers, surface mount state, forms,
// channel subscriptions) supersede each other per target: only the last one
// survives, at the position it was emitted. Messages and toasts are never
// coalesced.
type emitter struct {
	effects []ir.Effect
}

func (em *emitter) emit(e ir.Effect) {
	if fam := e.Kind.Family(); fam != "" {
		for i, prev := range em.effects {
			if prev.Target == e.Target && prev.Kind.Family() == fam {
				em.effects = append(em.effects[:i], em.effects[i+1:]...)
				break
			}
		}
	}
	em.effects = append(em.effects, e)
}

// collect returns the effects with ids derived from the cycle sequence
// number and final position.
func (em *emitter) collect(seq int64) []ir.Effect {
	out := make([]ir.Effect, len(em.effects))
	for i, e := range em.effects {
		e.ID = ir.EffectID(seq, i, e.Kind, e.Target)
		out[i] = e
	}
	return out
}

func (em *emitter) len() int { return len(em.effects) }
