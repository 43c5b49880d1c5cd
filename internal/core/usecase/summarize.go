package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
	"github.com/Whisker2257/casa/internal/infrastructure/chunking"
)

const (
	// OneShotLimit is the rune count below which a document is summarized
	// in a single generative call; longer documents go through map-reduce.
	OneShotLimit = 110000

	summarySectionMaxChars     = 50000
	summarySectionOverlapChars = 1000
)

// SummarizeUseCase produces cached structured summaries, one-shot for
// short documents and map-reduce over coarse sections for long ones.
type SummarizeUseCase struct {
	store     ports.ObjectStore
	extract   *ExtractUseCase
	generator ports.Generator

	oneShotLimit int
}

func NewSummarizeUseCase(store ports.ObjectStore, extract *ExtractUseCase, generator ports.Generator) *SummarizeUseCase {
	return &SummarizeUseCase{
		store:        store,
		extract:      extract,
		generator:    generator,
		oneShotLimit: OneShotLimit,
	}
}

// Summarize returns the cached summary for path unless force is set, in
// which case the cache read is skipped. The fresh result is always written
// back.
func (uc *SummarizeUseCase) Summarize(ctx context.Context, projectID, path string, force bool) (string, error) {
	key := domain.SummaryKey(projectID, path)
	if !force {
		if cached, err := uc.store.Read(ctx, key); err == nil {
			return string(cached), nil
		} else if !domain.IsKind(err, domain.ErrNotFound) {
			return "", fmt.Errorf("read summary cache: %w", err)
		}
	}

	markdown, err := uc.extract.EnsureMarkdown(ctx, projectID, path)
	if err != nil {
		return "", err
	}

	var summary string
	if len([]rune(markdown)) < uc.oneShotLimit {
		summary, err = uc.oneShot(ctx, markdown)
	} else {
		summary, err = uc.mapReduce(ctx, markdown)
	}
	if err != nil {
		return "", err
	}

	if err := uc.store.Write(ctx, key, []byte(summary)); err != nil {
		return "", fmt.Errorf("write summary cache: %w", err)
	}
	return summary, nil
}

// SummarizeMany summarizes documents concurrently. One failing document
// yields a per-document error entry, never a batch failure.
func (uc *SummarizeUseCase) SummarizeMany(ctx context.Context, projectID string, paths []string, force bool) ([]domain.SummaryResult, error) {
	if len(paths) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "summarize batch", fmt.Errorf("no paths given"))
	}

	results := make([]domain.SummaryResult, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			summary, err := uc.Summarize(ctx, projectID, path, force)
			if err != nil {
				results[i] = domain.SummaryResult{Path: path, Error: err.Error()}
				return
			}
			results[i] = domain.SummaryResult{Path: path, Summary: summary}
		}(i, path)
	}
	wg.Wait()
	return results, nil
}

func (uc *SummarizeUseCase) oneShot(ctx context.Context, markdown string) (string, error) {
	out, err := uc.generator.Complete(ctx, domain.GenerationRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: summarySystemPrompt},
			{Role: domain.RoleUser, Content: "Summarize this paper:\n\n" + markdown},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("summarize document: %w", err)
	}
	return out, nil
}

func (uc *SummarizeUseCase) mapReduce(ctx context.Context, markdown string) (string, error) {
	chunks, err := chunking.SectionChunks(markdown, domain.SectionParams{
		MaxChars:     summarySectionMaxChars,
		OverlapChars: summarySectionOverlapChars,
	})
	if err != nil {
		return "", err
	}

	// Section passes run sequentially; each output feeds the merge call.
	partials := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		partial, err := uc.generator.Complete(ctx, domain.GenerationRequest{
			Messages: []domain.Message{
				{Role: domain.RoleSystem, Content: sectionSummarySystemPrompt},
				{Role: domain.RoleUser, Content: fmt.Sprintf("Section %q:\n\n%s", chunk.Section, chunk.Text)},
			},
			Temperature: 0.3,
			MaxTokens:   384,
		})
		if err != nil {
			return "", fmt.Errorf("summarize section %s: %w", chunk.ID, err)
		}
		partials = append(partials, partial)
	}

	var sb strings.Builder
	for i, partial := range partials {
		fmt.Fprintf(&sb, "Part %d:\n%s\n\n", i+1, partial)
	}

	merged, err := uc.generator.Complete(ctx, domain.GenerationRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: summarySystemPrompt},
			{Role: domain.RoleUser, Content: "Merge these partial summaries of one paper into a single summary:\n\n" + sb.String()},
		},
		Temperature: 0.25,
		MaxTokens:   768,
	})
	if err != nil {
		return "", fmt.Errorf("merge section summaries: %w", err)
	}
	return merged, nil
}

const summarySystemPrompt = `You are a scientific editor. Produce a structured summary of about 300 words with the headings Background, Methods, Results and Conclusion. Use only information from the provided text.`

const sectionSummarySystemPrompt = `You are a scientific editor. Summarize the given section of a paper in about 150 words, keeping concrete findings and numbers. Use only information from the provided text.`
