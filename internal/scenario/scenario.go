// Package scenario replays YAML-described ledger sessions against a fresh
// in-memory service and renders the outcome of every step as a trace.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultClock is the instant a scenario runs at when it names none.
var DefaultClock = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Scenario is a named sequence of ledger operations.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Owner overrides the ledger owner identity.
	Owner string `yaml:"owner,omitempty"`
	// Clock fixes the service clock, RFC 3339.
	Clock string `yaml:"clock,omitempty"`
	Steps []Step `yaml:"steps"`
}

// Step invokes one operation. Expect names the error kind the step must fail
// with, e.g. UNAUTHORIZED; empty means the step must succeed.
type Step struct {
	Op     string         `yaml:"op"`
	Caller string         `yaml:"caller,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect string         `yaml:"expect,omitempty"`
	// Save binds a string result to a variable usable as $name in later args.
	Save string `yaml:"save,omitempty"`
}

// Load reads and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a scenario document. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, eris.Wrap(err, "scenario: parse yaml")
	}
	if err := sc.validate(); err != nil {
		return nil, eris.Wrap(err, "scenario: invalid")
	}
	return &sc, nil
}

// StartTime returns the fixed instant the scenario runs at.
func (sc *Scenario) StartTime() (time.Time, error) {
	if sc.Clock == "" {
		return DefaultClock, nil
	}
	at, err := time.Parse(time.RFC3339, sc.Clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: %w", err)
	}
	return at.UTC(), nil
}

func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := sc.StartTime(); err != nil {
		return err
	}
	for i, step := range sc.Steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if _, ok := operations[step.Op]; !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}
	return nil
}
