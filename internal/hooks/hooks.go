package hooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/florianilch/clawd/internal/chatcompletions"
)

// Hook rewrites a translated request before dispatch. Headers are the
// inbound client request headers.
type Hook interface {
	Apply(ctx context.Context, req *chatcompletions.Request, headers http.Header) (*chatcompletions.Request, error)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, req *chatcompletions.Request, headers http.Header) (*chatcompletions.Request, error)

func (f HookFunc) Apply(ctx context.Context, req *chatcompletions.Request, headers http.Header) (*chatcompletions.Request, error) {
	return f(ctx, req, headers)
}

// Pipeline applies hooks in registration order, each receiving the previous output.
type Pipeline struct {
	hooks []Hook
}

// Compile-time check that Pipeline is itself a Hook
var _ Hook = (*Pipeline)(nil)

func NewPipeline(hooks ...Hook) *Pipeline {
	return &Pipeline{hooks: hooks}
}

func (p *Pipeline) Apply(ctx context.Context, req *chatcompletions.Request, headers http.Header) (*chatcompletions.Request, error) {
	for i, hook := range p.hooks {
		next, err := hook.Apply(ctx, req, headers)
		if err != nil {
			return nil, fmt.Errorf("hook %d (%T): %w", i, hook, err)
		}
		if next != nil {
			req = next
		}
	}
	return req, nil
}
