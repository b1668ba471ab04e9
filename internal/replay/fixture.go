// Package replay runs recorded conversation fixtures through the full turn
// pipeline with scripted model outputs, so pipeline behavior can be checked
// deterministically without a live provider.
package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/persona-controller/internal/guard"
	"github.com/danielpatrickdp/persona-controller/internal/persona"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	StartState      FixtureStartState       `json:"start_state"`
	Config          FixtureConfig           `json:"config"`
	Turns           []FixtureTurn           `json:"turns"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureStartState is the JSON-serializable initial self-state.
type FixtureStartState struct {
	Immutable guard.ImmutableHeader `json:"immutable"`
	Header    guard.HeaderWriteback `json:"state_header"`
}

// FixtureConfig bundles the policy, budget, and controller settings for a run.
type FixtureConfig struct {
	AutonomyLevel     string   `json:"autonomy_level"`
	ReflectionEnabled bool     `json:"reflection_enabled"`
	Temperature       float64  `json:"temperature"`
	TurnCost          float64  `json:"turn_cost"`
	MaxActions        int      `json:"max_actions"`
	DailyCostLimit    float64  `json:"daily_cost_limit"`
	MaxAttempts       int      `json:"max_attempts"`
	MaxRepairDepth    int      `json:"max_repair_depth"`
	WriteScopes       []string `json:"write_scopes"`
}

// FixtureTurn is one scripted turn. AnswerScript entries are consumed one per
// attempt; an entry with the "ERR:" prefix makes that attempt fail with the
// remainder as the error message, which exercises the repair loop.
type FixtureTurn struct {
	TurnID        string   `json:"turn_id"`
	Scope         string   `json:"scope"`
	Prompt        string   `json:"prompt"`
	AnswerScript  []string `json:"answer_script"`
	ReflectOutput string   `json:"reflect_output"`
}

// FixtureExpectedResult captures the expected outcome per turn.
type FixtureExpectedResult struct {
	TurnID    string `json:"turn_id"`
	Action    string `json:"action"`    // "answered" | "escalated"
	Writeback string `json:"writeback"` // "committed" | "rejected" | "skipped" | "none"
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToState converts a fixture start state to the domain state.
func (s *FixtureStartState) ToState() persona.State {
	return persona.State{Immutable: s.Immutable, Header: s.Header}
}

// #endregion fixture-loader
