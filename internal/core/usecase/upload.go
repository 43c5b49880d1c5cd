package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
)

// UploadUseCase stores a document, registers it and schedules background
// processing. Re-uploading an existing path invalidates every derived
// artifact first so stale markdown/summaries/vectors never outlive their
// source.
type UploadUseCase struct {
	store   ports.ObjectStore
	files   ports.FileRepository
	indexer ports.DocumentIndexer
	queue   ports.JobQueue
}

func NewUploadUseCase(
	store ports.ObjectStore,
	files ports.FileRepository,
	indexer ports.DocumentIndexer,
	queue ports.JobQueue,
) *UploadUseCase {
	return &UploadUseCase{
		store:   store,
		files:   files,
		indexer: indexer,
		queue:   queue,
	}
}

func (uc *UploadUseCase) Upload(ctx context.Context, projectID, path string, data []byte) (*domain.File, error) {
	if path == "" {
		return nil, domain.WrapError(domain.ErrValidation, "upload", fmt.Errorf("path is required"))
	}
	// A ".." segment would normalize across the project prefix.
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return nil, domain.WrapError(domain.ErrValidation, "upload", fmt.Errorf("path must not contain '..'"))
		}
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "upload", fmt.Errorf("empty file body"))
	}

	key := domain.ObjectKey(projectID, path)
	if _, err := uc.store.Stat(ctx, key); err == nil {
		// Replacement: derived artifacts belong to the old bytes.
		if err := uc.indexer.Invalidate(ctx, projectID, path); err != nil {
			return nil, fmt.Errorf("invalidate replaced document: %w", err)
		}
	} else if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("stat existing document: %w", err)
	}

	if err := uc.store.Write(ctx, key, data); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	now := time.Now().UTC()
	file := &domain.File{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Path:      path,
		Size:      int64(len(data)),
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.files.Upsert(ctx, file); err != nil {
		return nil, fmt.Errorf("register file: %w", err)
	}

	job := domain.ProcessJob{ProjectID: projectID, Path: path, Op: domain.JobOpIndex}
	if err := uc.queue.PublishProcessJob(ctx, job); err != nil {
		return nil, fmt.Errorf("schedule processing: %w", err)
	}
	return file, nil
}
