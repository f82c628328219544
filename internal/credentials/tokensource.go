package credentials

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenSource presents a stored API key as a bearer token. The key is read
// once, on first use, and reused for the life of the process.
type TokenSource struct {
	ctx   context.Context
	store Store
}

// Compile-time check that TokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource wraps store. ctx bounds store reads.
func NewTokenSource(ctx context.Context, store Store) oauth2.TokenSource {
	// Tokens without expiry stay valid, so the store is hit only once.
	return oauth2.ReuseTokenSource(nil, &TokenSource{ctx: ctx, store: store})
}

func (s *TokenSource) Token() (*oauth2.Token, error) {
	key, err := s.store.Read(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("load api key: %w", err)
	}
	return &oauth2.Token{AccessToken: key, TokenType: "Bearer"}, nil
}

// NewTransport returns a RoundTripper that authorizes every request with the
// key from store. A nil base uses http.DefaultTransport.
func NewTransport(ctx context.Context, store Store, base http.RoundTripper) http.RoundTripper {
	return &oauth2.Transport{
		Source: NewTokenSource(ctx, store),
		Base:   base,
	}
}
