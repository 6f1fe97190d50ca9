// Package engine implements the rehook hook reconciliation engine.
//
// A component is a plain function that is re-evaluated from scratch on every
// round trip. Hooks declared during the call recover their value from the
// serialized snapshot carried by the request, so the component behaves as if
// it were long-lived although nothing survives between invocations.
//
// ARCHITECTURE:
//
// One Cycle:
//  1. The request carries a prior snapshot, props and zero or more events.
//  2. With events, a discovery render rebuilds every hook instance so that
//     events have closures to run against.
//  3. Events are dispatched in arrival order in the event phase. Unknown
//     targets and stale completions are dropped.
//  4. One final render produces the UI tree.
//  5. Hooks the final render did not produce are pruned, with teardown
//     effects for held resources.
//  6. The response carries the tree, the minimal delta, ordered effects
//     with deterministic ids, and the loads the host must run.
//
// Identity:
// Hook ids are <component path>/<namespace>#<ordinal> for positional hooks
// and <component path>/<namespace>:<key> for keyed hooks. Each component
// records the kind sequence of its positional hooks as a $shape entry; a
// later render that declares a different kind at the same position has
// diverged. IdentityStrict fails the cycle; IdentityPositional
// reinitializes the diverged hooks.
//
// Phases:
// Render bodies may read state, start timers, mount surfaces and subscribe
// to channels. Only event handlers may change state values, show forms or
// show toasts. A hook called with no cycle in progress fails with
// ErrNotInRenderContext.
//
// CRITICAL PATTERNS:
//
// No wall clock in ids: request ids, form ids and effect ids are SHA-256
// over canonical JSON of logical inputs (hook id, dependency key,
// generation, cycle seq). The same request always yields the same response.
//
// Single goroutine per cycle: a RenderContext is threaded explicitly through
// every component and hook call and is never shared. Loaders run outside
// the cycle through RunLoader; their results come back as events.
package engine
