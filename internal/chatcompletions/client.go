package chatcompletions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/bytedance/sonic"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

const chatCompletionsPath = "chat/completions"

// Backend performs single Chat Completions calls. Implementations do not retry.
type Backend interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (*Stream, error)
}

// AzureConfig selects Azure OpenAI. Deployments are addressed by the request model.
// Credential takes precedence over APIKey.
type AzureConfig struct {
	Endpoint   string
	APIVersion string
	APIKey     string
	Credential azcore.TokenCredential
}

// ClientConfig configures the backend client.
type ClientConfig struct {
	// BaseURL of an OpenAI-compatible API. Ignored when Azure is set.
	BaseURL string
	Azure   *AzureConfig
	// Transport carries authentication for OpenAI-compatible backends.
	Transport http.RoundTripper
	// RequestTimeout bounds a single attempt. Zero means no limit.
	RequestTimeout time.Duration
}

// Client talks to an OpenAI-compatible backend through the OpenAI SDK transport.
// Payloads use this package's own wire types so that fields unknown to the SDK
// (reasoning_effort on older SDK versions, raw tool schemas) pass through untouched.
type Client struct {
	client openai.Client
}

// Compile-time check that Client implements Backend
var _ Backend = (*Client)(nil)

// NewClient creates a backend client.
func NewClient(cfg ClientConfig) (*Client, error) {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{
			Transport: transport,
			// Client.Timeout = 0 allows long-running SSE streams
		}),
		// Retries are owned by Dispatcher
		option.WithMaxRetries(0),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}

	switch {
	case cfg.Azure != nil:
		if cfg.Azure.Endpoint == "" {
			return nil, errors.New("azure endpoint cannot be empty")
		}
		opts = append(opts, azure.WithEndpoint(cfg.Azure.Endpoint, cfg.Azure.APIVersion))
		switch {
		case cfg.Azure.Credential != nil:
			opts = append(opts, azure.WithTokenCredential(cfg.Azure.Credential))
		case cfg.Azure.APIKey != "":
			opts = append(opts, azure.WithAPIKey(cfg.Azure.APIKey))
		default:
			return nil, errors.New("azure requires an API key or a token credential")
		}
	case cfg.BaseURL != "":
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	default:
		return nil, errors.New("base URL cannot be empty")
	}

	return &Client{client: openai.NewClient(opts...)}, nil
}

// Complete sends a non-streaming request.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := c.client.Post(ctx, chatCompletionsPath, nil, &resp, option.WithRequestBody("application/json", body)); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream sends a streaming request. Backend status errors surface here, before
// the first chunk, so that they can still be retried.
func (c *Client) Stream(ctx context.Context, req *Request) (*Stream, error) {
	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var raw *http.Response
	if err := c.client.Post(ctx, chatCompletionsPath, nil, &raw, option.WithRequestBody("application/json", body)); err != nil {
		return nil, err
	}

	return newSSEStream(ssestream.NewStream[Chunk](ssestream.NewDecoder(raw), nil)), nil
}
