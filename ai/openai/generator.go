package openai

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/lexrag/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken("none"),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		temperature: config.Temperature,
		timeout:     config.Timeout,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a chat-backed answer generator.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate sends prompt as a system and a human message and returns the
// cleaned text of the first choice.
func (g *Generator) Generate(ctx context.Context, prompt ai.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content := make([]llms.MessageContent, 0, 2)
	if prompt.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, prompt.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, prompt.User))

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ai.ErrEmptyResponse
	}

	answer := cleanCompletion(response.Choices[0].Content)
	g.logger.Debug("generated answer", "prompt_length", len(prompt.User), "answer_length", len(answer))
	return answer, nil
}
