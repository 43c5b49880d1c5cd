package ports

import (
	"context"

	"github.com/Whisker2257/casa/internal/core/domain"
)

// ObjectStore is the blob/cache store. Keys are /-delimited strings scoped
// by project id prefix; existence of a key is the only cache-hit signal.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) error
	// Read fails with domain.ErrNotFound on a miss.
	Read(ctx context.Context, key string) ([]byte, error)
	Stat(ctx context.Context, key string) (domain.ObjectInfo, error)
	// Delete is best-effort: deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]domain.ObjectEntry, error)
	// ListRecursive hides internal chunk-cache artifacts unless
	// includeInternal is set.
	ListRecursive(ctx context.Context, prefix string, includeInternal bool) ([]domain.ObjectEntry, error)
}

// MarkdownConverter turns raw document bytes into markdown text. Slow
// (seconds to tens of seconds); no internal retries on submission failure.
type MarkdownConverter interface {
	Convert(ctx context.Context, data []byte) (string, error)
}

// Embedder builds fixed-dimension vectors for chunks and query text.
// Embed returns one vector per input, order preserved.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores and searches vector records in a single shared
// collection. Upsert is a no-op on empty input; Query returns matches in
// descending score order.
type VectorIndex interface {
	Upsert(ctx context.Context, records []domain.VectorRecord) error
	Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error)
	DeleteByPath(ctx context.Context, path string) error
}

// Generator produces completions from role-tagged messages. Stream invokes
// emit for every text delta and returns the collected output.
type Generator interface {
	Complete(ctx context.Context, req domain.GenerationRequest) (string, error)
	Stream(ctx context.Context, req domain.GenerationRequest, emit func(delta string) error) (string, error)
}

// FileRepository persists file registry state.
type FileRepository interface {
	Upsert(ctx context.Context, file *domain.File) error
	GetByPath(ctx context.Context, projectID, path string) (*domain.File, error)
	UpdateStatus(ctx context.Context, projectID, path string, status domain.FileStatus, errMessage string) error
}

// JobQueue publishes/consumes document-processing jobs.
type JobQueue interface {
	PublishProcessJob(ctx context.Context, job domain.ProcessJob) error
	SubscribeProcessJobs(ctx context.Context, handler func(context.Context, domain.ProcessJob) error) error
}
