package ports

import (
	"context"

	"github.com/Whisker2257/casa/internal/core/domain"
)

// StreamEmitter receives live output from an orchestrator. Progress lines
// and answer deltas travel on separate channels so transports can frame
// them distinctly. A nil emitter means the caller wants only the return
// value.
type StreamEmitter interface {
	Progress(msg string) error
	Delta(text string) error
}

// Uploader is the inbound contract for storing/replacing a document.
type Uploader interface {
	Upload(ctx context.Context, projectID, path string, data []byte) (*domain.File, error)
}

// Chunker is the inbound contract for chunking a stored file.
type Chunker interface {
	ChunkFile(ctx context.Context, projectID, path string, params domain.ChunkParams) ([]domain.Chunk, error)
}

// DocumentIndexer covers explicit indexing, lazy section indexing and
// invalidation of derived artifacts.
type DocumentIndexer interface {
	IndexPaths(ctx context.Context, projectID string, paths []string) (int, error)
	IndexDocument(ctx context.Context, projectID, path string) ([]domain.Chunk, error)
	Invalidate(ctx context.Context, projectID, path string) error
}

// QuestionAnswerer runs retrieval-augmented QA over one document.
type QuestionAnswerer interface {
	Answer(ctx context.Context, projectID, path, question string, topK int, force bool, emit StreamEmitter) (string, error)
}

// Summarizer produces cached structured summaries.
type Summarizer interface {
	Summarize(ctx context.Context, projectID, path string, force bool) (string, error)
	SummarizeMany(ctx context.Context, projectID string, paths []string, force bool) ([]domain.SummaryResult, error)
}

// CompareRequest describes a cross-document comparison. A blank Focus
// selects summary mode; anything else selects generic mode over full
// texts.
type CompareRequest struct {
	ProjectID string
	Paths     []string
	Focus     string
	Force     bool
}

type Comparator interface {
	Compare(ctx context.Context, req CompareRequest, emit StreamEmitter) error
}

// DocumentProcessor is the worker-side contract for asynchronous jobs.
type DocumentProcessor interface {
	Process(ctx context.Context, job domain.ProcessJob) error
}
