package domain

// VectorRecord is one (id, vector, metadata) triple stored in the index.
// The id encodes enough structure to recover the chunk it represents:
// "pdf::<path>::<chunkID>" for section-indexed documents,
// "<path>#<index>" for fixed-window indexing.
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

type VectorMetadata struct {
	Path    string `json:"path"`
	Section string `json:"section,omitempty"`
}

type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata VectorMetadata `json:"metadata"`
}

// VectorFilter restricts queries and deletions to matching metadata. The
// index is a single shared namespace, so callers must always filter by
// path to avoid cross-document leakage.
type VectorFilter struct {
	Path string
}
