package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quizarena/internal/quiz"
)

// Scenario is a scripted arena run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules override the default game rules.
	Rules Rules `yaml:"rules,omitempty"`

	// Problems are handed out in order, cycling.
	Problems []ProblemSpec `yaml:"problems"`

	// Setup seeds the Score Store before the first step.
	Setup []SeedRecord `yaml:"setup,omitempty"`

	// Steps drive the engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the transcript and the final store.
	Assertions []Assertion `yaml:"assertions"`
}

// Rules holds the rule overrides a scenario may set. Zero means default.
type Rules struct {
	WinningScore int           `yaml:"winning_score,omitempty"`
	BonusUnit    time.Duration `yaml:"bonus_unit,omitempty"`
	NoBonus      bool          `yaml:"no_bonus,omitempty"`
}

// ProblemSpec is a problem given by its operands and operators.
type ProblemSpec struct {
	Numbers    []int    `yaml:"numbers"`
	Operations []string `yaml:"operations"`
}

// Problem builds the quiz problem described by p.
func (p ProblemSpec) Problem() (quiz.Problem, error) {
	ops := make([]quiz.Operator, len(p.Operations))
	for i, op := range p.Operations {
		ops[i] = quiz.Operator(op)
	}
	return quiz.NewProblem(p.Numbers, ops)
}

// SeedRecord is one result merged into the store during setup.
type SeedRecord struct {
	Name           string        `yaml:"name"`
	Score          int           `yaml:"score,omitempty"`
	ProblemsSolved int           `yaml:"problems_solved,omitempty"`
	BestTime       time.Duration `yaml:"best_time,omitempty"`
	Won            bool          `yaml:"won,omitempty"`
	Games          int           `yaml:"games,omitempty"` // times to merge; default 1
}

// Step is one scripted action.
type Step struct {
	Action  string        `yaml:"action"`
	Conn    string        `yaml:"conn,omitempty"`
	Name    string        `yaml:"name,omitempty"`
	Answer  float64       `yaml:"answer,omitempty"`
	Session string        `yaml:"session,omitempty"`
	Winner  string        `yaml:"winner,omitempty"`
	For     time.Duration `yaml:"for,omitempty"`
}

// Step actions.
const (
	StepJoin       = "join"
	StepLeave      = "leave"
	StepSubmit     = "submit"
	StepDisconnect = "disconnect"
	StepEnd        = "end"
	StepWait       = "wait"
)

// Assertion validates the transcript or the final store.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Conn restricts transcript assertions to one connection. Required for
	// delivery_order; empty means any connection elsewhere.
	Conn string `yaml:"conn,omitempty"`

	// Message is the outbound message type (delivered, delivery_contains).
	Message string `yaml:"message,omitempty"`

	// Messages is the expected type order (delivery_order).
	Messages []string `yaml:"messages,omitempty"`

	// Count is the expected number of deliveries (delivered).
	Count int `yaml:"count,omitempty"`

	// Payload is a subset of the expected payload (delivery_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Player names the stored record (final_record).
	Player string `yaml:"player,omitempty"`

	// Expect is a subset of the expected record fields (final_record),
	// keyed by their JSON names.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertDelivered        = "delivered"
	AssertDeliveryOrder    = "delivery_order"
	AssertDeliveryContains = "delivery_contains"
	AssertFinalRecord      = "final_record"
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

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Problems) == 0 {
		return fmt.Errorf("problems list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, p := range s.Problems {
		if _, err := p.Problem(); err != nil {
			return fmt.Errorf("problems[%d]: %w", i, err)
		}
	}

	for i, r := range s.Setup {
		if r.Name == "" {
			return fmt.Errorf("setup[%d]: name is required", i)
		}
		if r.Games < 0 {
			return fmt.Errorf("setup[%d]: games must be non-negative", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Action {
	case StepJoin:
		if s.Conn == "" || s.Name == "" {
			return fmt.Errorf("steps[%d]: join requires conn and name", index)
		}
	case StepLeave, StepSubmit, StepDisconnect:
		if s.Conn == "" {
			return fmt.Errorf("steps[%d]: %s requires conn", index, s.Action)
		}
	case StepEnd:
		if s.Session == "" {
			return fmt.Errorf("steps[%d]: end requires session", index)
		}
	case StepWait:
		if s.For <= 0 {
			return fmt.Errorf("steps[%d]: wait requires a positive duration", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, s.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertDelivered:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for delivered", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for delivered", index)
		}
	case AssertDeliveryOrder:
		if a.Conn == "" {
			return fmt.Errorf("assertions[%d]: conn is required for delivery_order", index)
		}
		if len(a.Messages) == 0 {
			return fmt.Errorf("assertions[%d]: messages list is required for delivery_order", index)
		}
	case AssertDeliveryContains:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for delivery_contains", index)
		}
	case AssertFinalRecord:
		if a.Player == "" {
			return fmt.Errorf("assertions[%d]: player is required for final_record", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_record", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
