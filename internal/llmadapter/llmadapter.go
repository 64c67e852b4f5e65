// Package llmadapter turns free-text notes into candidate KIF assertion
// strings. It is a perception transducer only: the Generator's output is
// parsed and routed exactly like any other input, never trusted or acted on
// directly. Grounded on mbflow's OpenAICompletionExecutor
// (internal/application/executor/node_executors.go): resolve API key, build
// a ChatCompletionRequest with a single user message, call
// CreateChatCompletion, return the first choice's content.
package llmadapter

import (
	"context"
	"fmt"

	"noema/internal/logging"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Generator produces a free-text completion for a prompt. The caller is
// responsible for parsing the result as KIF.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator implements Generator against any OpenAI-compatible
// endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

// NewOpenAIGenerator constructs an OpenAIGenerator. baseURL may be empty to
// use the default OpenAI endpoint, or point at a compatible server.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    logging.Get(logging.CategoryLLM),
	}
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		g.log.Warn("completion request failed", zap.Error(err))
		return "", fmt.Errorf("llmadapter: completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmadapter: completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// NotePrompt builds the prompt used to turn a free-text note into a
// candidate KIF assertion string. It asks for exactly one KIF form and
// nothing else, since the caller will feed the result straight to the
// parser with no further cleanup.
func NotePrompt(note string) string {
	return fmt.Sprintf(
		"Translate the following note into a single well-formed KIF assertion "+
			"(a parenthesized S-expression). Respond with only the KIF form, no "+
			"explanation, no markdown fencing.\n\nNote: %s",
		note,
	)
}
