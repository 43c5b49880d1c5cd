package usecase

import (
	"context"
	"fmt"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
)

// ProcessUseCase is the worker-side pipeline: it walks a file through
// processing into ready or failed, recording the failure message on the
// registry row.
type ProcessUseCase struct {
	files      ports.FileRepository
	indexer    ports.DocumentIndexer
	summarizer ports.Summarizer
}

func NewProcessUseCase(files ports.FileRepository, indexer ports.DocumentIndexer, summarizer ports.Summarizer) *ProcessUseCase {
	return &ProcessUseCase{
		files:      files,
		indexer:    indexer,
		summarizer: summarizer,
	}
}

func (uc *ProcessUseCase) Process(ctx context.Context, job domain.ProcessJob) error {
	if err := uc.files.UpdateStatus(ctx, job.ProjectID, job.Path, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	var opErr error
	switch job.Op {
	case domain.JobOpIndex:
		_, opErr = uc.indexer.IndexDocument(ctx, job.ProjectID, job.Path)
	case domain.JobOpSummarize:
		_, opErr = uc.summarizer.Summarize(ctx, job.ProjectID, job.Path, false)
	default:
		opErr = domain.WrapError(domain.ErrValidation, "process job", fmt.Errorf("unknown op %q", job.Op))
	}

	if opErr != nil {
		if err := uc.files.UpdateStatus(ctx, job.ProjectID, job.Path, domain.StatusFailed, opErr.Error()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		return opErr
	}

	if err := uc.files.UpdateStatus(ctx, job.ProjectID, job.Path, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return nil
}
