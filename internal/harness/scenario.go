package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
)

// Scenario drives one app instance through a sequence of cycles and checks
// the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file and the instance.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// App is the demo app to mount.
	App string `yaml:"app"`

	// Props are the instance props.
	Props map[string]any `yaml:"props,omitempty"`

	// Identity is "strict" (default) or "positional".
	Identity string `yaml:"identity,omitempty"`

	// Steps run after the mount cycle, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one unit of work. Exactly one of Press, Events, Redeliver,
// Settle and Submit is set.
type Step struct {
	Press     string         `yaml:"press,omitempty"`
	Events    []EventSpec    `yaml:"events,omitempty"`
	Redeliver bool           `yaml:"redeliver,omitempty"`
	Settle    bool           `yaml:"settle,omitempty"`
	Submit    map[string]any `yaml:"submit,omitempty"`

	// Expect is checked against the last response the step produced.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// EventSpec is an inbound event in YAML form.
type EventSpec struct {
	Kind    string `yaml:"kind"`
	Target  string `yaml:"target,omitempty"`
	Channel string `yaml:"channel,omitempty"`
	Payload any    `yaml:"payload,omitempty"`
	Visible *bool  `yaml:"visible,omitempty"`
}

// StepExpect describes the response of a step. Unset fields are not
// checked.
type StepExpect struct {
	// Set maps hook ids to their new value. Only listed ids are checked.
	Set map[string]any `yaml:"set,omitempty"`

	// Removed is the exact sorted list of pruned ids.
	Removed []string `yaml:"removed,omitempty"`

	// Effects is the exact effect list, by kind and target.
	Effects *[]EffectSpec `yaml:"effects,omitempty"`

	// Requeued is the number of loads handed to the host.
	Requeued *int `yaml:"requeued,omitempty"`

	// Dropped lists the drop reasons in event order.
	Dropped []string `yaml:"dropped,omitempty"`

	// Errors is the number of handler failures.
	Errors *int `yaml:"errors,omitempty"`

	// Text is the tree's text content.
	Text string `yaml:"text,omitempty"`
}

// EffectSpec names an effect by kind and target.
type EffectSpec struct {
	Kind   string `yaml:"kind"`
	Target string `yaml:"target"`
}

// Assertion validates the final trace or state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Hook is the hook id (final_state, hook_absent).
	Hook string `yaml:"hook,omitempty"`

	// Value is the expected committed value (final_state).
	Value any `yaml:"value,omitempty"`

	// Load is the expected load state of an async hook (final_state).
	Load string `yaml:"load,omitempty"`

	// Kind and Target select effects (effect_count).
	Kind   string `yaml:"kind,omitempty"`
	Target string `yaml:"target,omitempty"`

	// Count is the expected number of matching effects (effect_count).
	Count *int `yaml:"count,omitempty"`

	// Kinds is the expected effect order (effect_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Text is the expected final text content (text).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState  = "final_state"
	AssertHookAbsent  = "hook_absent"
	AssertEffectCount = "effect_count"
	AssertEffectOrder = "effect_order"
	AssertText        = "text"
	AssertReplay      = "replay"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// ScenarioFiles lists the *.yaml and *.yml files of dir, sorted.
func ScenarioFiles(dir string) ([]string, error) {
	var out []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.App == "" {
		return fmt.Errorf("app is required")
	}
	if _, err := engine.ParseIdentityMode(s.Identity); err != nil {
		return err
	}
	if _, err := ir.FromAny(toStringMap(s.Props)); err != nil {
		return fmt.Errorf("props: %w", err)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	if step.Press != "" {
		set++
	}
	if len(step.Events) > 0 {
		set++
	}
	if step.Redeliver {
		set++
	}
	if step.Settle {
		set++
	}
	if step.Submit != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of press, events, redeliver, settle, submit is required (got %d)", set)
	}
	for i, ev := range step.Events {
		if !ir.EventKind(ev.Kind).Valid() {
			return fmt.Errorf("events[%d]: unknown kind %q", i, ev.Kind)
		}
	}
	if step.Expect != nil && step.Expect.Effects != nil {
		for i, e := range *step.Expect.Effects {
			if !ir.EffectKind(e.Kind).Valid() {
				return fmt.Errorf("expect.effects[%d]: unknown kind %q", i, e.Kind)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertFinalState:
		if a.Hook == "" {
			return fmt.Errorf("hook is required for final_state")
		}
		if a.Value == nil && a.Load == "" {
			return fmt.Errorf("value or load is required for final_state")
		}
	case AssertHookAbsent:
		if a.Hook == "" {
			return fmt.Errorf("hook is required for hook_absent")
		}
	case AssertEffectCount:
		if !ir.EffectKind(a.Kind).Valid() {
			return fmt.Errorf("unknown effect kind %q for effect_count", a.Kind)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("non-negative count is required for effect_count")
		}
	case AssertEffectOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("kinds list is required for effect_order")
		}
	case AssertText, AssertReplay:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// toStringMap widens a YAML map for ir.FromAny. A nil map stays nil.
func toStringMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
