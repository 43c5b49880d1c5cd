package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
)

// fakeSummarizer returns one canned summary per path and counts calls.
type fakeSummarizer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *fakeSummarizer) Summarize(_ context.Context, _, path string, _ bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, path)
	if s.err != nil {
		return "", s.err
	}
	return "summary of " + path, nil
}

func (s *fakeSummarizer) SummarizeMany(ctx context.Context, projectID string, paths []string, force bool) ([]domain.SummaryResult, error) {
	results := make([]domain.SummaryResult, len(paths))
	for i, path := range paths {
		summary, err := s.Summarize(ctx, projectID, path, force)
		if err != nil {
			results[i] = domain.SummaryResult{Path: path, Error: err.Error()}
			continue
		}
		results[i] = domain.SummaryResult{Path: path, Summary: summary}
	}
	return results, nil
}

var _ ports.Summarizer = (*fakeSummarizer)(nil)

type compareFixture struct {
	store      *memStore
	converter  *fakeConverter
	summarizer *fakeSummarizer
	generator  *fakeGenerator
	uc         *CompareUseCase
}

func newCompareFixture(t *testing.T, paths ...string) *compareFixture {
	t.Helper()
	store := newMemStore()
	for _, path := range paths {
		if err := store.Write(context.Background(), "proj/"+path, []byte("raw")); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	converter := &fakeConverter{markdown: "## Intro\nshared findings"}
	summarizer := &fakeSummarizer{}
	generator := &fakeGenerator{}
	extract := NewExtractUseCase(store, converter)
	return &compareFixture{
		store:      store,
		converter:  converter,
		summarizer: summarizer,
		generator:  generator,
		uc:         NewCompareUseCase(extract, summarizer, generator),
	}
}

func TestCompareRejectsTooManyDocumentsBeforeProcessing(t *testing.T) {
	fx := newCompareFixture(t)

	paths := make([]string, CompareMaxDocs+1)
	for i := range paths {
		paths[i] = fmt.Sprintf("papers/p%d.pdf", i)
	}

	err := fx.uc.Compare(context.Background(), ports.CompareRequest{ProjectID: "proj", Paths: paths}, nil)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(fx.summarizer.calls) != 0 {
		t.Fatalf("summarizer called before validation: %v", fx.summarizer.calls)
	}
	if fx.converter.calls != 0 {
		t.Fatalf("converter called before validation: %d", fx.converter.calls)
	}
}

func TestCompareRejectsSingleDocument(t *testing.T) {
	fx := newCompareFixture(t, "papers/a.pdf")
	err := fx.uc.Compare(context.Background(), ports.CompareRequest{
		ProjectID: "proj",
		Paths:     []string{"papers/a.pdf"},
	}, nil)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCompareSummaryModeUsesSummariesAndLabels(t *testing.T) {
	fx := newCompareFixture(t, "papers/a.pdf", "papers/b.pdf")
	emit := &collectEmitter{}

	err := fx.uc.Compare(context.Background(), ports.CompareRequest{
		ProjectID: "proj",
		Paths:     []string{"papers/a.pdf", "papers/b.pdf"},
	}, emit)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if len(fx.summarizer.calls) != 2 {
		t.Fatalf("summarizer calls = %v, want both paths", fx.summarizer.calls)
	}
	if fx.converter.calls != 0 {
		t.Fatalf("summary mode read full texts: %d conversions", fx.converter.calls)
	}

	if len(fx.generator.requests) != 1 {
		t.Fatalf("generator requests = %d, want 1", len(fx.generator.requests))
	}
	prompt := fx.generator.requests[0].Messages[1].Content
	for _, want := range []string{"[P1] papers/a.pdf", "[P2] papers/b.pdf", "summary of papers/a.pdf"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if emit.deltas.String() == "" {
		t.Fatal("no report streamed")
	}
}

func TestCompareFocusModeReadsFullTexts(t *testing.T) {
	fx := newCompareFixture(t, "papers/a.pdf", "papers/b.pdf")

	err := fx.uc.Compare(context.Background(), ports.CompareRequest{
		ProjectID: "proj",
		Paths:     []string{"papers/a.pdf", "papers/b.pdf"},
		Focus:     "which caching strategy wins?",
	}, nil)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if len(fx.summarizer.calls) != 0 {
		t.Fatalf("focus mode called the summarizer: %v", fx.summarizer.calls)
	}
	prompt := fx.generator.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "shared findings") {
		t.Error("prompt lost full document text")
	}
	if !strings.Contains(prompt, "which caching strategy wins?") {
		t.Error("prompt lost the focus question")
	}
}

func TestCompareFocusModeEnforcesAggregateBudget(t *testing.T) {
	fx := newCompareFixture(t, "papers/a.pdf", "papers/b.pdf")
	fx.uc.totalBudget = 10

	err := fx.uc.Compare(context.Background(), ports.CompareRequest{
		ProjectID: "proj",
		Paths:     []string{"papers/a.pdf", "papers/b.pdf"},
		Focus:     "methods",
	}, nil)
	if !domain.IsKind(err, domain.ErrSizeLimitExceeded) {
		t.Fatalf("expected ErrSizeLimitExceeded, got %v", err)
	}
	if len(fx.generator.requests) != 0 {
		t.Fatal("generator called despite the size cap")
	}
}

func TestCompareSkipsUnreadableDocuments(t *testing.T) {
	fx := newCompareFixture(t, "papers/a.pdf", "papers/b.pdf")
	emit := &collectEmitter{}

	err := fx.uc.Compare(context.Background(), ports.CompareRequest{
		ProjectID: "proj",
		Paths:     []string{"papers/a.pdf", "papers/missing.pdf", "papers/b.pdf"},
		Focus:     "results",
	}, emit)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	skipped := false
	for _, msg := range emit.progress {
		if strings.Contains(msg, "skipping papers/missing.pdf") {
			skipped = true
		}
	}
	if !skipped {
		t.Fatalf("no skip progress: %v", emit.progress)
	}

	prompt := fx.generator.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "[P2] papers/b.pdf") {
		t.Error("labels are not dense after a skip")
	}
	if strings.Contains(prompt, "missing.pdf") {
		t.Error("skipped document leaked into the prompt")
	}
}

func TestCompareFailsWhenFewerThanTwoReadable(t *testing.T) {
	fx := newCompareFixture(t, "papers/a.pdf")

	err := fx.uc.Compare(context.Background(), ports.CompareRequest{
		ProjectID: "proj",
		Paths:     []string{"papers/a.pdf", "papers/missing.pdf"},
		Focus:     "results",
	}, nil)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(fx.generator.requests) != 0 {
		t.Fatal("generator called with a single readable document")
	}
}
