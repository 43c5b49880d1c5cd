package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
	"github.com/Whisker2257/casa/internal/infrastructure/chunking"
)

const (
	// DefaultTopK is the retrieval depth when the caller does not choose one.
	DefaultTopK = 15

	// GeneratorContextBudget soft-caps full-document text handed to the
	// generator, in runes.
	GeneratorContextBudget = 60000

	dontKnowPrefix = "i don't know"
)

// QAUseCase answers questions over a single document with retrieval,
// self-healing indexing and a full-document fallback:
// EmbedQuery, VectorSearch, AutoIndexIfEmpty, BuildContext, InitialAnswer,
// DeepFallback. Answers are cached per (document, question hash).
type QAUseCase struct {
	store     ports.ObjectStore
	extract   *ExtractUseCase
	embedder  ports.Embedder
	vector    ports.VectorIndex
	generator ports.Generator
	indexer   ports.DocumentIndexer

	topK          int
	contextBudget int
}

func NewQAUseCase(
	store ports.ObjectStore,
	extract *ExtractUseCase,
	embedder ports.Embedder,
	vector ports.VectorIndex,
	generator ports.Generator,
	indexer ports.DocumentIndexer,
	topK int,
) *QAUseCase {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &QAUseCase{
		store:         store,
		extract:       extract,
		embedder:      embedder,
		vector:        vector,
		generator:     generator,
		indexer:       indexer,
		topK:          topK,
		contextBudget: GeneratorContextBudget,
	}
}

func (uc *QAUseCase) Answer(
	ctx context.Context,
	projectID, path, question string,
	topK int,
	force bool,
	emit ports.StreamEmitter,
) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", domain.WrapError(domain.ErrValidation, "answer", fmt.Errorf("question is required"))
	}
	if topK <= 0 {
		topK = uc.topK
	}

	cacheKey := domain.QAKey(projectID, path, question)
	if !force {
		if cached, err := uc.store.Read(ctx, cacheKey); err == nil {
			answer := string(cached)
			if emit != nil {
				if err := emit.Delta(answer); err != nil {
					return answer, err
				}
			}
			return answer, nil
		} else if !domain.IsKind(err, domain.ErrNotFound) {
			return "", fmt.Errorf("read answer cache: %w", err)
		}
	}

	progress(emit, "embedding question")
	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}

	progress(emit, "searching document")
	matches, err := uc.vector.Query(ctx, queryVector, topK, domain.VectorFilter{Path: path})
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}

	if len(matches) == 0 {
		// Zero vectors means the document was never indexed, not that
		// retrieval failed. Index once and search again.
		progress(emit, "document not indexed yet, indexing now")
		if _, err := uc.indexer.IndexDocument(ctx, projectID, path); err != nil {
			return "", err
		}
		matches, err = uc.vector.Query(ctx, queryVector, topK, domain.VectorFilter{Path: path})
		if err != nil {
			return "", fmt.Errorf("vector search after indexing: %w", err)
		}
	}

	progress(emit, "building context")
	contextText, err := uc.buildContext(ctx, projectID, path, matches)
	if err != nil {
		return "", err
	}

	progress(emit, "generating answer")
	answer, err := uc.generator.Stream(ctx, domain.GenerationRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: qaSystemPrompt},
			{Role: domain.RoleUser, Content: qaUserPrompt(contextText, question)},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	}, deltaFunc(emit))
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), dontKnowPrefix) {
		progress(emit, "context was not enough, rereading the full document")
		answer, err = uc.deepFallback(ctx, projectID, path, question, emit)
		if err != nil {
			return "", err
		}
	}

	if err := uc.store.Write(ctx, cacheKey, []byte(answer)); err != nil {
		return "", fmt.Errorf("write answer cache: %w", err)
	}
	return answer, nil
}

// buildContext hydrates matched vector ids back to chunk text through the
// chunk cache, recomputing the cache from markdown when it is missing.
func (uc *QAUseCase) buildContext(ctx context.Context, projectID, path string, matches []domain.VectorMatch) (string, error) {
	chunks, err := uc.chunkLookup(ctx, projectID, path)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, match := range matches {
		chunk, ok := chunks[chunkRef(match.ID)]
		if !ok {
			continue
		}
		if chunk.Section != "" {
			fmt.Fprintf(&sb, "## %s\n", chunk.Section)
		}
		sb.WriteString(chunk.Text)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

func (uc *QAUseCase) chunkLookup(ctx context.Context, projectID, path string) (map[string]domain.Chunk, error) {
	var chunks []domain.Chunk

	cached, err := uc.store.Read(ctx, domain.ChunksKey(projectID, path))
	switch {
	case err == nil:
		if err := json.Unmarshal(cached, &chunks); err != nil {
			return nil, fmt.Errorf("decode chunk cache: %w", err)
		}
	case domain.IsKind(err, domain.ErrNotFound):
		markdown, err := uc.extract.EnsureMarkdown(ctx, projectID, path)
		if err != nil {
			return nil, err
		}
		chunks, err = chunking.SectionChunks(markdown, domain.SectionParams{})
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(chunks); err == nil {
			_ = uc.store.Write(ctx, domain.ChunksKey(projectID, path), encoded)
		}
	default:
		return nil, fmt.Errorf("read chunk cache: %w", err)
	}

	byID := make(map[string]domain.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}
	return byID, nil
}

func (uc *QAUseCase) deepFallback(ctx context.Context, projectID, path, question string, emit ports.StreamEmitter) (string, error) {
	markdown, err := uc.extract.EnsureMarkdown(ctx, projectID, path)
	if err != nil {
		return "", err
	}
	full := chunking.Truncate(markdown, uc.contextBudget)

	return uc.generator.Stream(ctx, domain.GenerationRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: qaFallbackSystemPrompt},
			{Role: domain.RoleUser, Content: qaUserPrompt(full, question)},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	}, deltaFunc(emit))
}

// chunkRef recovers the chunk id from a structured vector id, taking the
// suffix after the last "::" or "#" separator.
func chunkRef(id string) string {
	if i := strings.LastIndex(id, "::"); i >= 0 {
		return id[i+2:]
	}
	if i := strings.LastIndex(id, "#"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func progress(emit ports.StreamEmitter, msg string) {
	if emit != nil {
		_ = emit.Progress(msg)
	}
}

func deltaFunc(emit ports.StreamEmitter) func(string) error {
	if emit == nil {
		return nil
	}
	return emit.Delta
}

const qaSystemPrompt = `You are a careful research assistant. Answer the question using only the supplied excerpts from a single paper. If the excerpts do not contain the answer, reply exactly: I don't know.`

const qaFallbackSystemPrompt = `You are a careful research assistant. Answer the question using only the supplied full text of a single paper. If the text truly does not contain the answer, reply exactly: I still don't know.`

func qaUserPrompt(contextText, question string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
