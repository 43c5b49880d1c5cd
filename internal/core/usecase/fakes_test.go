package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
)

// memStore is a map-backed ports.ObjectStore for orchestrator tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	writes  []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	s.writes = append(s.writes, key)
	return nil
}

func (s *memStore) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "read object", fmt.Errorf("%s", key))
	}
	return data, nil
}

func (s *memStore) Stat(_ context.Context, key string) (domain.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return domain.ObjectInfo{}, domain.WrapError(domain.ErrNotFound, "stat object", fmt.Errorf("%s", key))
	}
	return domain.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]domain.ObjectEntry, error) {
	return s.ListRecursive(context.Background(), prefix, false)
}

func (s *memStore) ListRecursive(_ context.Context, prefix string, includeInternal bool) ([]domain.ObjectEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []domain.ObjectEntry
	for key := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !includeInternal && domain.IsInternalArtifact(key) {
			continue
		}
		entries = append(entries, domain.ObjectEntry{Path: key})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// fakeConverter returns a canned markdown rendition and counts calls.
type fakeConverter struct {
	markdown string
	calls    int
	err      error
}

func (c *fakeConverter) Convert(context.Context, []byte) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.markdown, nil
}

// fakeEmbedder yields constant-dimension vectors and records batch sizes.
type fakeEmbedder struct {
	batches [][]string
	err     error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// fakeVector keeps upserted records in memory; Query returns records whose
// metadata path matches, in insertion order.
type fakeVector struct {
	mu      sync.Mutex
	records []domain.VectorRecord
	queries int
	deletes []string
}

func (v *fakeVector) Upsert(_ context.Context, records []domain.VectorRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records = append(v.records, records...)
	return nil
}

func (v *fakeVector) Query(_ context.Context, _ []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.queries++
	var matches []domain.VectorMatch
	for _, rec := range v.records {
		if filter.Path != "" && rec.Metadata.Path != filter.Path {
			continue
		}
		matches = append(matches, domain.VectorMatch{ID: rec.ID, Score: 1, Metadata: rec.Metadata})
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

func (v *fakeVector) DeleteByPath(_ context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deletes = append(v.deletes, path)
	kept := v.records[:0]
	for _, rec := range v.records {
		if rec.Metadata.Path != path {
			kept = append(kept, rec)
		}
	}
	v.records = kept
	return nil
}

// fakeGenerator scripts completions in call order. An empty script answers
// with a fixed string.
type fakeGenerator struct {
	mu       sync.Mutex
	script   []string
	requests []domain.GenerationRequest
}

func (g *fakeGenerator) Complete(_ context.Context, req domain.GenerationRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.script) == 0 {
		return "generated answer", nil
	}
	out := g.script[0]
	g.script = g.script[1:]
	return out, nil
}

func (g *fakeGenerator) Stream(ctx context.Context, req domain.GenerationRequest, emit func(string) error) (string, error) {
	out, err := g.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if emit != nil {
		if err := emit(out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// collectEmitter records progress lines and concatenates deltas.
type collectEmitter struct {
	progress []string
	deltas   strings.Builder
}

func (e *collectEmitter) Progress(msg string) error {
	e.progress = append(e.progress, msg)
	return nil
}

func (e *collectEmitter) Delta(text string) error {
	e.deltas.WriteString(text)
	return nil
}

type fakeFiles struct {
	mu       sync.Mutex
	upserts  []domain.File
	statuses []string
	getErr   error
}

func (f *fakeFiles) Upsert(_ context.Context, file *domain.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, *file)
	return nil
}

func (f *fakeFiles) GetByPath(_ context.Context, projectID, path string) (*domain.File, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.File{ProjectID: projectID, Path: path, Status: domain.StatusReady}, nil
}

func (f *fakeFiles) UpdateStatus(_ context.Context, projectID, path string, status domain.FileStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, fmt.Sprintf("%s/%s=%s:%s", projectID, path, status, errMessage))
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []domain.ProcessJob
}

func (q *fakeQueue) PublishProcessJob(_ context.Context, job domain.ProcessJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) SubscribeProcessJobs(context.Context, func(context.Context, domain.ProcessJob) error) error {
	return nil
}

var _ ports.ObjectStore = (*memStore)(nil)
var _ ports.Embedder = (*fakeEmbedder)(nil)
var _ ports.VectorIndex = (*fakeVector)(nil)
var _ ports.Generator = (*fakeGenerator)(nil)
var _ ports.StreamEmitter = (*collectEmitter)(nil)
var _ ports.FileRepository = (*fakeFiles)(nil)
var _ ports.JobQueue = (*fakeQueue)(nil)
