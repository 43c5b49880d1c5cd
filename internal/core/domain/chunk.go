package domain

// Chunk is a bounded-length slice of document text used as an
// indexing/retrieval unit. IDs are stable within one chunking run only.
type Chunk struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Section string `json:"section,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Section is a heading-delimited region of a document, in document order.
type Section struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ChunkParams controls fixed-window chunking. All lengths are in runes.
type ChunkParams struct {
	ChunkSize int
	Overlap   int
}

// SectionParams controls section-aware chunking. Sections longer than
// MaxChars are sub-windowed with MaxChars/OverlapChars.
type SectionParams struct {
	MaxChars     int
	OverlapChars int
}

const (
	DefaultChunkSize    = 1800
	DefaultOverlap      = 200
	DefaultMaxChars     = 3200
	DefaultOverlapChars = 1000
)

func (p ChunkParams) WithDefaults() ChunkParams {
	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}
	if p.Overlap < 0 {
		p.Overlap = DefaultOverlap
	}
	return p
}

func (p SectionParams) WithDefaults() SectionParams {
	if p.MaxChars <= 0 {
		p.MaxChars = DefaultMaxChars
	}
	if p.OverlapChars <= 0 {
		p.OverlapChars = DefaultOverlapChars
	}
	return p
}
