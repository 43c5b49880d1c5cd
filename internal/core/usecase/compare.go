package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
	"github.com/Whisker2257/casa/internal/infrastructure/chunking"
)

const (
	// CompareMaxDocs caps how many documents one comparison may span.
	CompareMaxDocs = 10

	// compareTotalBudget caps the aggregate full-text payload in generic
	// mode, in runes. Per-document text is soft-capped at
	// GeneratorContextBudget first.
	compareTotalBudget = 180000
)

// CompareUseCase builds cross-document comparison reports. A blank focus
// compares cached summaries; a non-blank focus compares full texts under
// per-document and aggregate size caps.
type CompareUseCase struct {
	extract    *ExtractUseCase
	summarizer ports.Summarizer
	generator  ports.Generator

	maxDocs     int
	docBudget   int
	totalBudget int
}

func NewCompareUseCase(extract *ExtractUseCase, summarizer ports.Summarizer, generator ports.Generator) *CompareUseCase {
	return &CompareUseCase{
		extract:     extract,
		summarizer:  summarizer,
		generator:   generator,
		maxDocs:     CompareMaxDocs,
		docBudget:   GeneratorContextBudget,
		totalBudget: compareTotalBudget,
	}
}

type labeledDoc struct {
	label string
	path  string
	text  string
}

func (uc *CompareUseCase) Compare(ctx context.Context, req ports.CompareRequest, emit ports.StreamEmitter) error {
	if len(req.Paths) < 2 {
		return domain.WrapError(domain.ErrValidation, "compare", fmt.Errorf("need at least two documents"))
	}
	if len(req.Paths) > uc.maxDocs {
		return domain.WrapError(domain.ErrValidation, "compare",
			fmt.Errorf("%d documents exceed the limit of %d", len(req.Paths), uc.maxDocs))
	}

	focus := strings.TrimSpace(req.Focus)

	var docs []labeledDoc
	total := 0
	for _, path := range req.Paths {
		var text string
		var err error
		if focus == "" {
			progress(emit, fmt.Sprintf("summarizing %s", path))
			text, err = uc.summarizer.Summarize(ctx, req.ProjectID, path, req.Force)
		} else {
			progress(emit, fmt.Sprintf("reading %s", path))
			text, err = uc.extract.EnsureMarkdown(ctx, req.ProjectID, path)
			text = chunking.Truncate(text, uc.docBudget)
		}
		if err != nil {
			// A single unreadable document does not sink the comparison.
			progress(emit, fmt.Sprintf("skipping %s: %v", path, err))
			continue
		}

		total += len([]rune(text))
		docs = append(docs, labeledDoc{
			label: fmt.Sprintf("P%d", len(docs)+1),
			path:  path,
			text:  text,
		})
	}

	if len(docs) < 2 {
		return domain.WrapError(domain.ErrValidation, "compare", fmt.Errorf("fewer than two readable documents"))
	}
	if focus != "" && total > uc.totalBudget {
		return domain.WrapError(domain.ErrSizeLimitExceeded, "compare",
			fmt.Errorf("combined document text of %d characters exceeds the limit of %d", total, uc.totalBudget))
	}

	progress(emit, "generating comparison report")
	_, err := uc.generator.Stream(ctx, domain.GenerationRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: compareSystemPrompt},
			{Role: domain.RoleUser, Content: comparePrompt(docs, focus)},
		},
		Temperature: 0.3,
		MaxTokens:   2048,
	}, deltaFunc(emit))
	if err != nil {
		return err
	}
	return nil
}

const compareSystemPrompt = `You are a scientific reviewer comparing research papers. Cite every claim with the paper label it comes from, for example [P1]. Never introduce information that is not in the provided papers.`

func comparePrompt(docs []labeledDoc, focus string) string {
	var sb strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&sb, "[%s] %s\n%s\n\n", doc.label, doc.path, doc.text)
	}
	sb.WriteString("Write a Markdown report with: an Overview of each paper, a Comparative Analysis section")
	if focus != "" {
		fmt.Fprintf(&sb, ", an answer to the focus question %q", focus)
	}
	sb.WriteString(", and an Open Questions section.")
	return sb.String()
}
