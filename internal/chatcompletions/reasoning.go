package chatcompletions

import "fmt"

// ReasoningEffort controls how much deliberation a reasoning model performs.
// The empty value omits the parameter.
type ReasoningEffort string

const (
	ReasoningEffortNone    ReasoningEffort = "none"
	ReasoningEffortMinimal ReasoningEffort = "minimal"
	ReasoningEffortLow     ReasoningEffort = "low"
	ReasoningEffortMedium  ReasoningEffort = "medium"
	ReasoningEffortHigh    ReasoningEffort = "high"
)

var reasoningEffortRank = map[ReasoningEffort]int{
	ReasoningEffortNone:    0,
	ReasoningEffortMinimal: 1,
	ReasoningEffortLow:     2,
	ReasoningEffortMedium:  3,
	ReasoningEffortHigh:    4,
}

// ParseReasoningEffort validates a configured effort level.
func ParseReasoningEffort(s string) (ReasoningEffort, error) {
	e := ReasoningEffort(s)
	if _, ok := reasoningEffortRank[e]; !ok {
		return "", fmt.Errorf("unknown reasoning effort %q (expected: none, minimal, low, medium, high)", s)
	}
	return e, nil
}

// AtLeast returns the higher of e and floor on the five-level scale.
func (e ReasoningEffort) AtLeast(floor ReasoningEffort) ReasoningEffort {
	if reasoningEffortRank[e] < reasoningEffortRank[floor] {
		return floor
	}
	return e
}

// Wire returns the value to send to the backend. "none" omits the parameter.
func (e ReasoningEffort) Wire() ReasoningEffort {
	if e == ReasoningEffortNone {
		return ""
	}
	return e
}
