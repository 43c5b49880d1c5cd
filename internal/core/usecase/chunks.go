package usecase

import (
	"context"
	"fmt"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/infrastructure/chunking"
)

// ChunkUseCase exposes fixed-window chunking over a stored document's
// markdown rendition.
type ChunkUseCase struct {
	extract *ExtractUseCase
}

func NewChunkUseCase(extract *ExtractUseCase) *ChunkUseCase {
	return &ChunkUseCase{extract: extract}
}

func (uc *ChunkUseCase) ChunkFile(ctx context.Context, projectID, path string, params domain.ChunkParams) ([]domain.Chunk, error) {
	markdown, err := uc.extract.EnsureMarkdown(ctx, projectID, path)
	if err != nil {
		return nil, err
	}

	chunks, err := chunking.ChunkText(markdown, params)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Source = path
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk %s: %w", path, chunking.ErrEmptyText)
	}
	return chunks, nil
}
