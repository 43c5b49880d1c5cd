package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Derived-artifact keys are deterministic string concatenations of
// (project id, relative path, suffix). The surrounding CRUD layer must
// respect this scheme when listing/deleting files so derived artifacts
// stay consistent with their sources.
const (
	MarkdownSuffix = ".mmd"
	SummarySuffix  = ".summary.md"
	ChunksSuffix   = ".chunks.json"
	qaSuffix       = ".qa.md"
)

// ObjectKey joins project id and relative path into a store key, dropping
// leading slashes. A blank project id addresses the root project.
func ObjectKey(projectID, relPath string) string {
	key := relPath
	if projectID != "" {
		key = projectID + "/" + relPath
	}
	return strings.TrimLeft(key, "/")
}

func MarkdownKey(projectID, relPath string) string {
	return ObjectKey(projectID, relPath) + MarkdownSuffix
}

func SummaryKey(projectID, relPath string) string {
	return ObjectKey(projectID, relPath) + SummarySuffix
}

func ChunksKey(projectID, relPath string) string {
	return ObjectKey(projectID, relPath) + ChunksSuffix
}

// QAKey caches one answer per (document, question) pair.
func QAKey(projectID, relPath, question string) string {
	return ObjectKey(projectID, relPath) + "." + QuestionHash(question) + qaSuffix
}

// QuestionHash is the first 16 hex chars of the question's SHA-256.
func QuestionHash(question string) string {
	sum := sha256.Sum256([]byte(question))
	return hex.EncodeToString(sum[:])[:16]
}

// IsInternalArtifact reports whether a key belongs to the chunk cache,
// which user-facing listings hide by default.
func IsInternalArtifact(key string) bool {
	return strings.HasSuffix(key, ChunksSuffix)
}
