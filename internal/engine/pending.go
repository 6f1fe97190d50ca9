package engine

import "github.com/roach88/rehook/internal/ir"

// PendingTimer is a running interval hook.
type PendingTimer struct {
	Target     ir.HookID
	DurationMS int64
}

// PendingChannel is a subscribed channel hook.
type PendingChannel struct {
	Target ir.HookID
	Name   string
}

// Pending is the host-side work implied by a stored snapshot: timers that
// should be armed, channels that should be subscribed and loads still in
// flight. A host that restarts rebuilds its schedules from it instead of
// replaying effects. All lists are sorted by hook id.
type Pending struct {
	Timers   []PendingTimer
	Channels []PendingChannel
	Requeued []ir.Requeue
}

// PendingWork derives Pending from snap.
func PendingWork(snap ir.Snapshot) Pending {
	var p Pending
	for _, id := range snap.IDs() {
		st := snap[id]
		switch st.Kind {
		case ir.KindInterval:
			if statusOf(st) == statusRunning {
				p.Timers = append(p.Timers, PendingTimer{Target: id, DurationMS: fieldInt(st, "duration_ms")})
			}
		case ir.KindChannel:
			if statusOf(st) == statusSubscribed {
				p.Channels = append(p.Channels, PendingChannel{Target: id, Name: fieldString(st, "channel")})
			}
		case ir.KindAsync:
			if st.Load == ir.LoadLoading {
				p.Requeued = append(p.Requeued, ir.Requeue{HookID: id, RequestID: st.RequestID, DepKey: st.DepKey})
			}
		}
	}
	return p
}
