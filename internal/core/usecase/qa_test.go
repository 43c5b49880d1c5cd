package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/Whisker2257/casa/internal/core/domain"
)

const qaMarkdown = "## Intro\nthe study examines caching\n## Methods\nwe measured latency with a benchmark"

type qaFixture struct {
	store     *memStore
	vector    *fakeVector
	generator *fakeGenerator
	qa        *QAUseCase
}

func newQAFixture(t *testing.T) *qaFixture {
	t.Helper()
	store := newMemStore()
	if err := store.Write(context.Background(), "proj/papers/a.pdf", []byte("raw bytes")); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	extract := NewExtractUseCase(store, &fakeConverter{markdown: qaMarkdown})
	embedder := &fakeEmbedder{}
	vector := &fakeVector{}
	generator := &fakeGenerator{}
	indexer := NewIndexUseCase(store, extract, embedder, vector, domain.ChunkParams{}, domain.SectionParams{})
	qa := NewQAUseCase(store, extract, embedder, vector, generator, indexer, 0)

	return &qaFixture{store: store, vector: vector, generator: generator, qa: qa}
}

func TestAnswerAutoIndexesUnindexedDocumentOnce(t *testing.T) {
	fx := newQAFixture(t)
	emit := &collectEmitter{}

	answer, err := fx.qa.Answer(context.Background(), "proj", "papers/a.pdf", "what was measured?", 0, false, emit)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "generated answer" {
		t.Fatalf("answer = %q", answer)
	}

	// First search finds nothing, indexing runs, second search succeeds.
	if fx.vector.queries != 2 {
		t.Fatalf("vector queries = %d, want 2", fx.vector.queries)
	}
	if len(fx.vector.records) == 0 {
		t.Fatal("no vectors upserted by auto-indexing")
	}
	if !fx.store.has(domain.ChunksKey("proj", "papers/a.pdf")) {
		t.Fatal("chunk cache not written")
	}
	if !fx.store.has(domain.QAKey("proj", "papers/a.pdf", "what was measured?")) {
		t.Fatal("answer not cached")
	}

	indexed := false
	for _, msg := range emit.progress {
		if strings.Contains(msg, "indexing") {
			indexed = true
		}
	}
	if !indexed {
		t.Fatalf("no indexing progress reported: %v", emit.progress)
	}
}

func TestAnswerBuildsContextFromMatchedChunks(t *testing.T) {
	fx := newQAFixture(t)

	if _, err := fx.qa.Answer(context.Background(), "proj", "papers/a.pdf", "q", 0, false, nil); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	var qaReq domain.GenerationRequest
	for _, req := range fx.generator.requests {
		qaReq = req
	}
	userMsg := qaReq.Messages[len(qaReq.Messages)-1].Content
	if !strings.Contains(userMsg, "caching") || !strings.Contains(userMsg, "benchmark") {
		t.Fatalf("prompt lost chunk text: %q", userMsg)
	}
}

func TestAnswerServedFromCache(t *testing.T) {
	fx := newQAFixture(t)
	key := domain.QAKey("proj", "papers/a.pdf", "cached question")
	if err := fx.store.Write(context.Background(), key, []byte("cached answer")); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	emit := &collectEmitter{}
	answer, err := fx.qa.Answer(context.Background(), "proj", "papers/a.pdf", "cached question", 0, false, emit)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "cached answer" {
		t.Fatalf("answer = %q", answer)
	}
	if emit.deltas.String() != "cached answer" {
		t.Fatalf("emitted = %q", emit.deltas.String())
	}
	if len(fx.generator.requests) != 0 {
		t.Fatalf("generator called %d times for a cache hit", len(fx.generator.requests))
	}
}

func TestAnswerForceBypassesCacheReadButWritesBack(t *testing.T) {
	fx := newQAFixture(t)
	key := domain.QAKey("proj", "papers/a.pdf", "q")
	if err := fx.store.Write(context.Background(), key, []byte("stale")); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	answer, err := fx.qa.Answer(context.Background(), "proj", "papers/a.pdf", "q", 0, true, nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "generated answer" {
		t.Fatalf("answer = %q", answer)
	}
	cached, err := fx.store.Read(context.Background(), key)
	if err != nil || string(cached) != "generated answer" {
		t.Fatalf("cache not refreshed: %q, %v", cached, err)
	}
}

func TestAnswerDeepFallbackOnDontKnow(t *testing.T) {
	fx := newQAFixture(t)
	fx.generator.script = []string{
		"I don't know. The provided excerpts do not mention it.",
		"the deep pass found it",
	}

	answer, err := fx.qa.Answer(context.Background(), "proj", "papers/a.pdf", "q", 0, false, nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "the deep pass found it" {
		t.Fatalf("answer = %q", answer)
	}
	if len(fx.generator.requests) != 2 {
		t.Fatalf("generator requests = %d, want 2", len(fx.generator.requests))
	}

	fallbackReq := fx.generator.requests[1]
	if !strings.Contains(fallbackReq.Messages[0].Content, "I still don't know") {
		t.Fatalf("fallback system prompt = %q", fallbackReq.Messages[0].Content)
	}
	if !strings.Contains(fallbackReq.Messages[1].Content, "benchmark") {
		t.Fatal("fallback prompt does not carry the full document")
	}

	cached, err := fx.store.Read(context.Background(), domain.QAKey("proj", "papers/a.pdf", "q"))
	if err != nil || string(cached) != "the deep pass found it" {
		t.Fatalf("cached = %q, %v", cached, err)
	}
}

func TestAnswerNoFallbackForConfidentAnswer(t *testing.T) {
	fx := newQAFixture(t)
	fx.generator.script = []string{"The result is 42."}

	answer, err := fx.qa.Answer(context.Background(), "proj", "papers/a.pdf", "q", 0, false, nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "The result is 42." {
		t.Fatalf("answer = %q", answer)
	}
	if len(fx.generator.requests) != 1 {
		t.Fatalf("generator requests = %d, want 1", len(fx.generator.requests))
	}
}

func TestAnswerRejectsBlankQuestion(t *testing.T) {
	fx := newQAFixture(t)
	_, err := fx.qa.Answer(context.Background(), "proj", "papers/a.pdf", "   ", 0, false, nil)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
