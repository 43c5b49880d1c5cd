package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
	"github.com/Whisker2257/casa/internal/infrastructure/chunking"
)

// IndexUseCase maintains the vector index for stored documents. Two id
// schemes exist side by side: explicit bulk indexing writes "<path>#<i>"
// fixed-window records, lazy per-document indexing writes
// "pdf::<path>::<chunkID>" section records that the QA path hydrates from
// the chunk cache.
type IndexUseCase struct {
	store    ports.ObjectStore
	extract  *ExtractUseCase
	embedder ports.Embedder
	vector   ports.VectorIndex

	chunkParams   domain.ChunkParams
	sectionParams domain.SectionParams
}

func NewIndexUseCase(
	store ports.ObjectStore,
	extract *ExtractUseCase,
	embedder ports.Embedder,
	vector ports.VectorIndex,
	chunkParams domain.ChunkParams,
	sectionParams domain.SectionParams,
) *IndexUseCase {
	return &IndexUseCase{
		store:         store,
		extract:       extract,
		embedder:      embedder,
		vector:        vector,
		chunkParams:   chunkParams.WithDefaults(),
		sectionParams: sectionParams.WithDefaults(),
	}
}

// IndexPaths bulk-indexes documents with fixed-window chunking and returns
// the total number of chunks upserted.
func (uc *IndexUseCase) IndexPaths(ctx context.Context, projectID string, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, domain.WrapError(domain.ErrValidation, "index paths", fmt.Errorf("no paths given"))
	}

	total := 0
	for _, path := range paths {
		markdown, err := uc.extract.EnsureMarkdown(ctx, projectID, path)
		if err != nil {
			return total, fmt.Errorf("extract %s: %w", path, err)
		}

		chunks, err := chunking.ChunkText(markdown, uc.chunkParams)
		if err != nil {
			return total, err
		}
		if len(chunks) == 0 {
			continue
		}

		records := make([]domain.VectorRecord, 0, len(chunks))
		texts := make([]string, 0, len(chunks))
		for i, chunk := range chunks {
			texts = append(texts, chunk.Text)
			records = append(records, domain.VectorRecord{
				ID:       fmt.Sprintf("%s#%d", path, i),
				Metadata: domain.VectorMetadata{Path: path},
			})
		}

		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embed %s: %w", path, err)
		}
		for i := range records {
			records[i].Values = vectors[i]
		}

		if err := uc.vector.Upsert(ctx, records); err != nil {
			return total, err
		}
		total += len(records)
	}
	return total, nil
}

// IndexDocument section-chunks one document, persists the chunk list and
// upserts the vectors. The chunk cache is written before the upsert so a
// crash in between is repaired by the next auto-index pass rather than
// leaving vectors that cannot be hydrated.
func (uc *IndexUseCase) IndexDocument(ctx context.Context, projectID, path string) ([]domain.Chunk, error) {
	markdown, err := uc.extract.EnsureMarkdown(ctx, projectID, path)
	if err != nil {
		return nil, err
	}

	chunks, err := chunking.SectionChunks(markdown, uc.sectionParams)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrIndexingFailed, "index document", chunking.ErrEmptyText)
	}

	encoded, err := json.Marshal(chunks)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk cache: %w", err)
	}
	if err := uc.store.Write(ctx, domain.ChunksKey(projectID, path), encoded); err != nil {
		return nil, fmt.Errorf("write chunk cache: %w", err)
	}

	texts := make([]string, 0, len(chunks))
	records := make([]domain.VectorRecord, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
		records = append(records, domain.VectorRecord{
			ID: fmt.Sprintf("pdf::%s::%s", path, chunk.ID),
			Metadata: domain.VectorMetadata{
				Path:    path,
				Section: chunk.Section,
			},
		})
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", path, err)
	}
	for i := range records {
		records[i].Values = vectors[i]
	}

	if err := uc.vector.Upsert(ctx, records); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Invalidate drops the derived artifacts of a replaced document: markdown
// cache, summary cache and every vector whose path matches. Best-effort on
// the cache side; absent keys are fine.
func (uc *IndexUseCase) Invalidate(ctx context.Context, projectID, path string) error {
	if err := uc.store.Delete(ctx, domain.MarkdownKey(projectID, path)); err != nil {
		return fmt.Errorf("delete markdown cache: %w", err)
	}
	if err := uc.store.Delete(ctx, domain.SummaryKey(projectID, path)); err != nil {
		return fmt.Errorf("delete summary cache: %w", err)
	}
	if err := uc.vector.DeleteByPath(ctx, path); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}
