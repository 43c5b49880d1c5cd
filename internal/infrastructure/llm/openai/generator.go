package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/Whisker2257/casa/internal/core/domain"
)

// Generator produces chat completions, complete or streamed.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, req domain.GenerationRequest) (string, error) {
	var text string
	err := g.client.withRateLimitRetry(ctx, "generate", func(ctx context.Context) error {
		completion, err := g.client.api.Chat.Completions.New(ctx, g.params(req))
		if err != nil {
			return err
		}
		if len(completion.Choices) == 0 {
			return domain.WrapError(domain.ErrGenerationFailed, "generate", fmt.Errorf("no completion choices returned"))
		}
		text = strings.TrimSpace(completion.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		if isRateLimitError(err) || domain.IsKind(err, domain.ErrRateLimited) {
			return "", err
		}
		if !domain.IsKind(err, domain.ErrGenerationFailed) {
			return "", domain.WrapError(domain.ErrGenerationFailed, "generate", err)
		}
		return "", err
	}
	return text, nil
}

// Stream emits every text delta and returns the collected output. The
// rate-limit retry only guards the stream handshake; deltas already
// delivered are never replayed.
func (g *Generator) Stream(ctx context.Context, req domain.GenerationRequest, emit func(delta string) error) (string, error) {
	if emit == nil {
		return g.Complete(ctx, req)
	}

	if err := g.client.wait(ctx); err != nil {
		return "", err
	}

	stream := g.client.api.Chat.Completions.NewStreaming(ctx, g.params(req))
	var out strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if err := emit(delta); err != nil {
			return out.String(), err
		}
	}
	if err := stream.Err(); err != nil {
		return out.String(), domain.WrapError(domain.ErrGenerationFailed, "generate stream", err)
	}
	return strings.TrimSpace(out.String()), nil
}

func (g *Generator) params(req domain.GenerationRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(g.client.genModel),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}
