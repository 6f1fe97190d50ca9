// Package host is the reference runtime around the engine.
//
// The engine is a pure function from (snapshot, events) to (tree, delta,
// effects, requeued). A host supplies everything else:
//
//	load snapshot -> engine.Cycle -> commit delta and log -> apply effects
//
// Runner does that against a store.Backend, one instance at a time per
// instance id. Applying effects means:
//   - set-timer / clear-timer arm and stop real tickers whose ticks come
//     back as timer-fire events
//   - subscribe-channel / unsubscribe-channel maintain the in-process fan-out
//     used by Broadcast
//   - requeued loads run on a bounded pool; completions come back as
//     async-completion events, and a newer request for the same hook
//     cancels the older one
//   - everything is published to registered Sinks (websocket clients)
//
// Timers and background loads need Run. Without it the runner is fully
// synchronous and Settle drives loads to completion, which is what the CLI,
// the stdio transport and the harness use.
package host
