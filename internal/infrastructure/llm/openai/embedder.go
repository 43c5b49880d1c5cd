package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/Whisker2257/casa/internal/core/domain"
)

// Embedder batches texts into fixed-dimension vectors with a single API
// request, preserving input order.
type Embedder struct {
	client *Client

	// create is the raw API call; tests substitute a fake.
	create func(ctx context.Context, texts []string) ([][]float32, error)
}

func NewEmbedder(client *Client) *Embedder {
	e := &Embedder{client: client}
	e.create = e.createViaAPI
	return e
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	err := e.client.withRateLimitRetry(ctx, "embed", func(ctx context.Context) error {
		out, err := e.create(ctx, texts)
		if err != nil {
			return err
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, domain.WrapError(domain.ErrIndexingFailed, "embed",
			fmt.Errorf("vectors/texts mismatch: %d/%d", len(vectors), len(texts)))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (e *Embedder) createViaAPI(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.client.embedModel),
	}
	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{OfString: openai.String(texts[0])}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}
	}

	resp, err := e.client.api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		vector := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vector[i] = float32(v)
		}
		vectors[int(item.Index)] = vector
	}
	return vectors, nil
}
