// Package harness runs YAML cycle scenarios against the demo apps.
//
// # Scenario Format
//
//	name: counter_increments
//	description: "Pressing Increment bumps the counter by one"
//	app: counter
//	props: { start: 0 }
//	steps:
//	  - press: Increment
//	    expect:
//	      set: { "counter/state#0": 1 }
//	      effects: []
//	  - events:
//	      - { kind: timer-fire, target: "ticker/Clock/interval#0" }
//	  - settle: true
//	  - submit: { name: Ada }
//	assertions:
//	  - type: final_state
//	    hook: "counter/state#0"
//	    value: 1
//	  - type: replay
//
// The first cycle (seq 1) always mounts the app with no events. Every step
// then runs one cycle, except settle, which runs loaders and cycles until
// nothing is requeued.
//
// # Step Kinds
//
//   - press: user interaction on the handler of the button with this label
//   - events: explicit events
//   - redeliver: the previous step's events again
//   - settle: run requeued loaders until the instance settles
//   - submit: form submission answering the last show-form effect
//
// # Assertion Types
//
//   - final_state: a hook's committed value and, for async hooks, load state
//   - hook_absent: a hook was pruned
//   - effect_count: how often an effect kind (optionally per target) was emitted
//   - effect_order: effect kinds appear in this order across the run
//   - text: the final tree's text content
//   - replay: the stored cycle log replays to the committed state
//
// # Deterministic Testing
//
// Each scenario runs through a host.Runner over a fresh in-memory SQLite
// store with a fixed instance id, so the trace read back from the cycle log
// is identical across runs and can be compared against golden files.
package harness
