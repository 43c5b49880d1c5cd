package domain

import "time"

type FileStatus string

const (
	StatusUploaded   FileStatus = "uploaded"
	StatusProcessing FileStatus = "processing"
	StatusReady      FileStatus = "ready"
	StatusFailed     FileStatus = "failed"
)

// File is the registry record for one stored document, identified by
// (project id, relative path). The bytes themselves live in the object
// store; derived artifacts live next to them under the key suffixes in
// keys.go.
type File struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	Status    FileStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type ObjectInfo struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

type ObjectEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
}

// ProcessJob is the payload published to the queue when a document needs
// asynchronous work.
type ProcessJob struct {
	ProjectID string `json:"project_id"`
	Path      string `json:"path"`
	Op        string `json:"op"`
}

const (
	JobOpIndex     = "index"
	JobOpSummarize = "summarize"
)

// SummaryResult is one entry of a batch summarization: either a summary or
// a per-document error, never both.
type SummaryResult struct {
	Path    string `json:"path"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}
