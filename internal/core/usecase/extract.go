package usecase

import (
	"context"
	"fmt"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
)

// ExtractUseCase produces and caches the markdown rendition of a stored
// document. The cache key is the source key plus ".mmd"; key existence is
// the only cache-hit signal.
type ExtractUseCase struct {
	store     ports.ObjectStore
	converter ports.MarkdownConverter
}

func NewExtractUseCase(store ports.ObjectStore, converter ports.MarkdownConverter) *ExtractUseCase {
	return &ExtractUseCase{store: store, converter: converter}
}

// EnsureMarkdown returns the cached markdown for path, extracting and
// caching it on a miss. Two concurrent misses both extract; last write
// wins.
func (uc *ExtractUseCase) EnsureMarkdown(ctx context.Context, projectID, path string) (string, error) {
	mdKey := domain.MarkdownKey(projectID, path)
	if cached, err := uc.store.Read(ctx, mdKey); err == nil {
		return string(cached), nil
	} else if !domain.IsKind(err, domain.ErrNotFound) {
		return "", fmt.Errorf("read markdown cache: %w", err)
	}

	raw, err := uc.store.Read(ctx, domain.ObjectKey(projectID, path))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	markdown, err := uc.converter.Convert(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("convert document: %w", err)
	}

	if err := uc.store.Write(ctx, mdKey, []byte(markdown)); err != nil {
		return "", fmt.Errorf("write markdown cache: %w", err)
	}
	return markdown, nil
}
