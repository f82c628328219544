package hooks

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/florianilch/clawd/internal/chatcompletions"
)

// CapabilityAdaptation adjusts a request to what the backend model accepts.
//
// Reasoning models lose temperature and top_p and get a reasoning effort by
// tier: top is always high, small gets none, mid gets the configured effort,
// raised to at least medium when the client asked for extended thinking.
// Other models lose reasoning_effort and have max_completion_tokens capped at
// the family ceiling. Models outside the family are left alone. The thinking
// directive never reaches the backend.
type CapabilityAdaptation struct {
	models Models
	logger *slog.Logger
}

// Compile-time check that CapabilityAdaptation implements Hook
var _ Hook = (*CapabilityAdaptation)(nil)

func NewCapabilityAdaptation(models Models, logger *slog.Logger) *CapabilityAdaptation {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CapabilityAdaptation{models: models, logger: logger}
}

func (c *CapabilityAdaptation) Apply(ctx context.Context, req *chatcompletions.Request, _ http.Header) (*chatcompletions.Request, error) {
	tier := req.Tier
	if tier == chatcompletions.TierUnknown {
		tier = c.models.TierOf(req.Model)
	}
	thinking := req.Thinking != nil && req.Thinking.Enabled
	req.Thinking = nil

	// Models outside the configured set passed through unmapped; their
	// capabilities are unknown, so their parameters are left as sent.
	if tier == chatcompletions.TierUnknown {
		c.logger.DebugContext(ctx, "unknown model, parameters unchanged", "model", req.Model)
		return req, nil
	}

	if !c.models.SupportsReasoning {
		req.ReasoningEffort = ""
		if limit := c.models.MaxOutputTokens; limit > 0 && req.MaxCompletionTokens != nil && *req.MaxCompletionTokens > limit {
			c.logger.DebugContext(ctx, "capping max_completion_tokens",
				"requested", *req.MaxCompletionTokens,
				"limit", limit,
			)
			req.MaxCompletionTokens = &limit
		}
		return req, nil
	}

	req.Temperature = nil
	req.TopP = nil

	switch tier {
	case chatcompletions.TierTop:
		req.ReasoningEffort = chatcompletions.ReasoningEffortHigh
	case chatcompletions.TierSmall:
		req.ReasoningEffort = ""
	default:
		effort := c.models.ReasoningEffort
		if thinking {
			effort = effort.AtLeast(chatcompletions.ReasoningEffortMedium)
		}
		req.ReasoningEffort = effort.Wire()
	}

	c.logger.DebugContext(ctx, "reasoning applied",
		"model", req.Model,
		"tier", tier,
		"thinking", thinking,
		"reasoning_effort", req.ReasoningEffort,
	)
	return req, nil
}
