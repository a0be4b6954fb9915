package harness

import (
	"encoding/json"
	"fmt"
	"time"
)

// Line is one delivered message in a transcript.
type Line struct {
	At      time.Duration   `json:"at"` // since the scenario began
	ConnID  string          `json:"conn"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// String renders the line as it appears in golden files.
func (l Line) String() string {
	return fmt.Sprintf("+%.3fs %s %s %s", l.At.Seconds(), l.ConnID, l.Type, l.Payload)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Transcript holds every delivery in order.
	Transcript []Line `json:"transcript"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Transcript: []Line{},
		Errors:     []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// To returns the lines delivered to connID, or every line when connID is empty.
func (r *Result) To(connID string) []Line {
	if connID == "" {
		return r.Transcript
	}
	var out []Line
	for _, l := range r.Transcript {
		if l.ConnID == connID {
			out = append(out, l)
		}
	}
	return out
}
