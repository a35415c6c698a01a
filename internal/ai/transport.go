package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// ModelSonnet is the default model for investigation synthesis
const ModelSonnet = "claude-sonnet-4-5-20250929"

// GetDefaultModel returns the synthesis model, checking SLEUTH_MODEL first
func GetDefaultModel() string {
	if model := os.Getenv("SLEUTH_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// AnthropicTransport runs agent tasks against the Anthropic Messages API
type AnthropicTransport struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// TransportConfig holds transport configuration
type TransportConfig struct {
	APIKey    string  // If empty, reads ANTHROPIC_API_KEY
	Model     string  // If empty, uses GetDefaultModel()
	MaxTokens int64   // Response token cap (default: 4096)
	RPS       float64 // Requests per second ceiling (default: 0.5)
}

// NewAnthropicTransport creates the production agent transport
func NewAnthropicTransport(cfg TransportConfig) (*AnthropicTransport, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 0.5
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicTransport{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Run sends the task as a single user message and returns the
// concatenated text blocks of the response
func (t *AnthropicTransport) Run(ctx context.Context, task string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait canceled: %w", err)
	}

	resp, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		MaxTokens: t.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(task)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// Compile-time check that AnthropicTransport implements Transport
var _ Transport = (*AnthropicTransport)(nil)
