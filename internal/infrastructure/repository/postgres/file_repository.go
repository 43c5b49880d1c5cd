package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Whisker2257/casa/internal/core/domain"
)

// FileRepository is the registry of workspace files and their processing
// status. The object store holds the bytes; this table holds the lifecycle.
type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *FileRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026021002)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	path TEXT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (project_id, path)
);

CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);
CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert registers a file or, when the same project/path is uploaded
// again, resets the existing row to the incoming status.
func (r *FileRepository) Upsert(ctx context.Context, file *domain.File) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO files (id, project_id, path, size, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (project_id, path) DO UPDATE
SET size = EXCLUDED.size,
    status = EXCLUDED.status,
    error_message = EXCLUDED.error_message,
    updated_at = EXCLUDED.updated_at
`,
		file.ID, file.ProjectID, file.Path, file.Size, string(file.Status), file.Error,
		file.CreatedAt, file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByPath(ctx context.Context, projectID, path string) (*domain.File, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, project_id, path, size, status, error_message, created_at, updated_at
FROM files
WHERE project_id = $1 AND path = $2
`, projectID, path)

	var file domain.File
	var status string
	err := row.Scan(
		&file.ID, &file.ProjectID, &file.Path, &file.Size, &status,
		&file.Error, &file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get file",
				fmt.Errorf("%s/%s", projectID, path))
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	file.Status = domain.FileStatus(status)
	return &file, nil
}

func (r *FileRepository) UpdateStatus(ctx context.Context, projectID, path string, status domain.FileStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE files
SET status = $3, error_message = $4, updated_at = $5
WHERE project_id = $1 AND path = $2
`, projectID, path, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return nil
}
