package hooks

import (
	"fmt"
	"slices"
	"strings"

	"github.com/florianilch/clawd/internal/chatcompletions"
)

// Models describes the backend models served for each tier and what they support.
type Models struct {
	Top   string
	Mid   string
	Small string

	// SupportsReasoning marks reasoning models: they reject sampling
	// parameters and accept reasoning_effort.
	SupportsReasoning bool
	// MaxOutputTokens caps max_completion_tokens. Zero means no cap.
	MaxOutputTokens int64
	// ReasoningEffort applies to the mid tier of reasoning models.
	ReasoningEffort chatcompletions.ReasoningEffort
}

// Model family presets.
const (
	FamilyGPT5  = "gpt-5"
	FamilyGPT4o = "gpt-4o"
)

var families = map[string]Models{
	FamilyGPT5: {
		Top:               "gpt-5",
		Mid:               "gpt-5",
		Small:             "gpt-5-mini",
		SupportsReasoning: true,
		ReasoningEffort:   chatcompletions.ReasoningEffortLow,
	},
	FamilyGPT4o: {
		Top:             "gpt-4o",
		Mid:             "gpt-4o",
		Small:           "gpt-4o-mini",
		MaxOutputTokens: 16384,
	},
}

// Family returns the preset for a model family.
func Family(name string) (Models, error) {
	m, ok := families[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(families))
		for n := range families {
			names = append(names, n)
		}
		slices.Sort(names)
		return Models{}, fmt.Errorf("unknown model family %q (expected one of: %s)", name, strings.Join(names, ", "))
	}
	return m, nil
}

// ForTier returns the backend model for a tier, or "" for TierUnknown.
func (m Models) ForTier(tier chatcompletions.Tier) string {
	switch tier {
	case chatcompletions.TierTop:
		return m.Top
	case chatcompletions.TierMid:
		return m.Mid
	case chatcompletions.TierSmall:
		return m.Small
	default:
		return ""
	}
}

// TierOf infers the tier of a backend model. When tiers share a model the
// lower tier wins, so a shared top/mid model is treated as mid.
func (m Models) TierOf(model string) chatcompletions.Tier {
	switch {
	case model == "":
		return chatcompletions.TierUnknown
	case strings.EqualFold(model, m.Small):
		return chatcompletions.TierSmall
	case strings.EqualFold(model, m.Mid):
		return chatcompletions.TierMid
	case strings.EqualFold(model, m.Top):
		return chatcompletions.TierTop
	default:
		return chatcompletions.TierUnknown
	}
}
