package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/quizarena/internal/store"
)

// RecordReader reads stored player records. Implemented by *store.Store.
type RecordReader interface {
	Lookup(ctx context.Context, name string) (store.PlayerRecord, error)
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Lines    []Line // Relevant transcript for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Lines) > 0 {
		fmt.Fprintf(&buf, "\nTranscript:\n")
		for i, l := range e.Lines {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, l)
		}
	}
	return buf.String()
}

// assertDelivered checks that a message type reached the connection exactly
// Count times.
func assertDelivered(r *Result, a Assertion) error {
	lines := r.To(a.Conn)
	count := 0
	for _, l := range lines {
		if l.Type == a.Message {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertDelivered,
			Expected: fmt.Sprintf("%d %s message(s) to %s", a.Count, a.Message, connLabel(a.Conn)),
			Actual:   fmt.Sprintf("%d delivered", count),
			Lines:    lines,
		}
	}
	return nil
}

// assertDeliveryOrder checks that the first occurrence of each message type
// follows the previous one. Other messages may intervene.
func assertDeliveryOrder(r *Result, a Assertion) error {
	lines := r.To(a.Conn)
	pos := 0
	for _, want := range a.Messages {
		found := false
		for pos < len(lines) {
			pos++
			if lines[pos-1].Type == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertDeliveryOrder,
				Expected: fmt.Sprintf("messages in order: %v", a.Messages),
				Actual:   fmt.Sprintf("%s missing or out of order", want),
				Lines:    lines,
			}
		}
	}
	return nil
}

// assertDeliveryContains checks that some message of the type carries every
// field of the expected payload.
func assertDeliveryContains(r *Result, a Assertion) error {
	lines := r.To(a.Conn)
	for _, l := range lines {
		if l.Type != a.Message {
			continue
		}
		var actual map[string]any
		if err := json.Unmarshal(l.Payload, &actual); err != nil {
			return fmt.Errorf("decode %s payload: %w", l.Type, err)
		}
		if matchFields(actual, a.Payload) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertDeliveryContains,
		Expected: fmt.Sprintf("%s to %s with %s", a.Message, connLabel(a.Conn), formatFields(a.Payload)),
		Actual:   "not found in transcript",
		Lines:    lines,
	}
}

// assertFinalRecord checks the stored record of a player.
func assertFinalRecord(ctx context.Context, rr RecordReader, a Assertion) error {
	rec, err := rr.Lookup(ctx, a.Player)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{
			Type:     AssertFinalRecord,
			Expected: fmt.Sprintf("record for %q", a.Player),
			Actual:   "record not found",
		}
	}
	if err != nil {
		return fmt.Errorf("lookup %q: %w", a.Player, err)
	}

	actual, err := toJSONMap(rec)
	if err != nil {
		return err
	}
	for _, key := range sortedKeys(a.Expect) {
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalRecord,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("fields present: %v", sortedKeys(actual)),
			}
		}
		if !valuesEqual(got, a.Expect[key]) {
			return &AssertionError{
				Type:     AssertFinalRecord,
				Expected: fmt.Sprintf("%s.%s = %v", a.Player, key, a.Expect[key]),
				Actual:   fmt.Sprintf("%s.%s = %v", a.Player, key, got),
			}
		}
	}
	return nil
}

// matchFields checks if actual contains all expected fields (subset match).
func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares a JSON-decoded value with a YAML-decoded one. Both
// are normalised through JSON so numbers compare as float64.
func valuesEqual(actual, expected any) bool {
	a, errA := normalize(actual)
	e, errE := normalize(expected)
	if errA != nil || errE != nil {
		return false
	}
	return reflect.DeepEqual(a, e)
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toJSONMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatFields creates a deterministic description of expected fields.
func formatFields(m map[string]any) string {
	if len(m) == 0 {
		return "(any payload)"
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

func connLabel(connID string) string {
	if connID == "" {
		return "any connection"
	}
	return connID
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The records parameter provides store access for final_record assertions.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, records RecordReader) []string {
	var errs []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDelivered:
			err = assertDelivered(result, a)
		case AssertDeliveryOrder:
			err = assertDeliveryOrder(result, a)
		case AssertDeliveryContains:
			err = assertDeliveryContains(result, a)
		case AssertFinalRecord:
			if records == nil {
				err = fmt.Errorf("assertion[%d]: final_record requires a record reader", i)
			} else {
				err = assertFinalRecord(ctx, records, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
