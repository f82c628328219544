package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/florianilch/clawd/internal/chatcompletions"
)

// TierRule assigns a tier to client model names matching a glob pattern.
// Patterns are matched case-insensitively.
type TierRule struct {
	Pattern string
	Tier    chatcompletions.Tier
}

// ClaudeTierRules map Claude model names by family keyword.
var ClaudeTierRules = []TierRule{
	{Pattern: "*opus*", Tier: chatcompletions.TierTop},
	{Pattern: "*sonnet*", Tier: chatcompletions.TierMid},
	{Pattern: "*haiku*", Tier: chatcompletions.TierSmall},
}

// GeminiTierRules map Gemini model names. Pro models are the main models.
var GeminiTierRules = append(slices.Clone(ClaudeTierRules),
	TierRule{Pattern: "*flash*", Tier: chatcompletions.TierSmall},
	TierRule{Pattern: "*pro*", Tier: chatcompletions.TierMid},
)

type compiledRule struct {
	pattern string
	glob    glob.Glob
	tier    chatcompletions.Tier
}

// TierMapping rewrites the client model name to the backend model of its
// tier and records the tier on the request. The first matching rule wins.
type TierMapping struct {
	rules    []compiledRule
	models   Models
	fallback chatcompletions.Tier
	logger   *slog.Logger
}

// Compile-time check that TierMapping implements Hook
var _ Hook = (*TierMapping)(nil)

// NewTierMapping compiles the rules. Names matching no rule use the fallback
// tier; with TierUnknown as fallback they pass through unchanged.
func NewTierMapping(rules []TierRule, models Models, fallback chatcompletions.Tier, logger *slog.Logger) (*TierMapping, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		g, err := glob.Compile(strings.ToLower(rule.Pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid tier pattern %q: %w", rule.Pattern, err)
		}
		compiled = append(compiled, compiledRule{pattern: rule.Pattern, glob: g, tier: rule.Tier})
	}

	return &TierMapping{rules: compiled, models: models, fallback: fallback, logger: logger}, nil
}

func (m *TierMapping) Apply(ctx context.Context, req *chatcompletions.Request, _ http.Header) (*chatcompletions.Request, error) {
	clientModel := req.Model
	tier := m.match(clientModel)
	if tier == chatcompletions.TierUnknown {
		m.logger.DebugContext(ctx, "model passed through", "model", clientModel)
		return req, nil
	}

	if model := m.models.ForTier(tier); model != "" {
		req.Model = model
	}
	req.Tier = tier

	m.logger.DebugContext(ctx, "model mapped",
		"client_model", clientModel,
		"backend_model", req.Model,
		"tier", tier,
	)
	return req, nil
}

func (m *TierMapping) match(model string) chatcompletions.Tier {
	lower := strings.ToLower(model)
	for _, rule := range m.rules {
		if rule.glob.Match(lower) {
			return rule.tier
		}
	}
	return m.fallback
}
