package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			outcome := event.Status
			if event.Error != "" {
				outcome = "error " + event.Error
			}
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", event.Seq, event.Action, event.Args, outcome)
		}
	}

	return buf.String()
}

// matchesStep reports whether event ran action with status. An empty
// status matches any outcome.
func matchesStep(event TraceEvent, action, status string) bool {
	return event.Action == action && (status == "" || event.Status == status)
}

func describeStep(action, status string) string {
	if status == "" {
		return action
	}
	return fmt.Sprintf("%s with status %s", action, status)
}

// assertTraceContains checks that a step ran the action.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchesStep(event, assertion.Action, assertion.Status) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeStep(assertion.Action, assertion.Status),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
// Each expected action is matched after the previous match, so an action
// may appear more than once in the list.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Actions {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Action == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual:   fmt.Sprintf("no %s after the preceding actions", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchesStep(event, assertion.Action, assertion.Status) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, describeStep(assertion.Action, assertion.Status)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the final snapshot against the expected
// fields using subset semantics.
func assertFinalState(final Snapshot, assertion Assertion) error {
	if msgs := matchSnapshot(final, assertion.Expect); len(msgs) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: formatFields(assertion.Expect),
			Actual:   strings.Join(msgs, "; "),
		}
	}
	return nil
}

// checkExpect validates one step against its expect clause.
func checkExpect(expect *Expect, ev TraceEvent) []string {
	var msgs []string
	if expect.Error != ev.Error {
		switch {
		case ev.Error == "":
			msgs = append(msgs, fmt.Sprintf("expected error %s, got status %s", expect.Error, ev.Status))
		default:
			msgs = append(msgs, fmt.Sprintf("unexpected error %s", ev.Error))
		}
	}
	if expect.Status != "" && ev.Error == "" && expect.Status != ev.Status {
		msgs = append(msgs, fmt.Sprintf("expected status %s, got %s", expect.Status, ev.Status))
	}
	msgs = append(msgs, matchSnapshot(ev.State, expect.State)...)
	return msgs
}

// matchSnapshot compares expected fields with the snapshot's JSON form.
// Fields are compared in sorted order so messages are stable.
func matchSnapshot(snap Snapshot, expected map[string]any) []string {
	if len(expected) == 0 {
		return nil
	}
	actual := snapshotFields(snap)

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, key := range keys {
		want := expected[key]
		got, ok := actual[key]
		if !ok && !isZero(want) {
			msgs = append(msgs, fmt.Sprintf("field %q: expected %v, not present", key, want))
			continue
		}
		if ok && !valuesEqual(got, want) {
			msgs = append(msgs, fmt.Sprintf("field %q: expected %v, got %v", key, want, got))
		}
	}
	return msgs
}

func snapshotFields(snap Snapshot) map[string]any {
	data, err := json.Marshal(snap)
	if err != nil {
		return map[string]any{}
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return map[string]any{}
	}
	return fields
}

// isZero reports whether v is the zero value of its kind. Omitted
// snapshot fields compare equal to zero.
func isZero(v any) bool {
	if f, ok := toFloat(v); ok {
		return f == 0
	}
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}

// valuesEqual compares a JSON-decoded actual value with a YAML-decoded
// expected one. Numbers compare within a small relative tolerance;
// maps use subset semantics.
func valuesEqual(actual, expected any) bool {
	if a, ok := toFloat(actual); ok {
		e, ok := toFloat(expected)
		return ok && floatsEqual(a, e)
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range exp {
			av, present := act[k]
			if !present {
				if isZero(v) {
					continue
				}
				return false
			}
			if !valuesEqual(av, v) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}
	return actual == expected
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func floatsEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// formatFields creates a human-readable, sorted description of fields.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, ", ")
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.Final, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
