package chunking

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Whisker2257/casa/internal/core/domain"
)

// All lengths are in runes, not bytes or tokens. No Unicode normalization
// is performed, so a multi-byte character counts as one unit on both sides
// of the wire.

// ChunkText splits text into overlapping fixed-size windows. Consecutive
// windows advance by ChunkSize-Overlap runes; the final chunk may be
// shorter than ChunkSize. Ids are the window ordinals "0", "1", ...
func ChunkText(text string, params domain.ChunkParams) ([]domain.Chunk, error) {
	p := params.WithDefaults()
	if p.Overlap >= p.ChunkSize {
		return nil, domain.WrapError(domain.ErrValidation, "chunk text",
			fmt.Errorf("overlap %d must be smaller than chunk size %d", p.Overlap, p.ChunkSize))
	}

	runes := []rune(text)
	step := p.ChunkSize - p.Overlap

	chunks := make([]domain.Chunk, 0, len(runes)/step+1)
	part := 0
	for start := 0; start < len(runes); start += step {
		end := start + p.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			ID:   strconv.Itoa(part),
			Text: string(runes[start:end]),
		})
		part++
	}
	return chunks, nil
}

var (
	latexSectionRe = regexp.MustCompile(`^\\section\*\{(.+?)\}`)
	mdHeadingRe    = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
)

// SplitSections splits markdown into heading-delimited sections, keeping
// document order. Content before the first heading is titled "Preamble".
// Both Mathpix-style `\section*{...}` lines and Markdown headings are
// recognized.
func SplitSections(text string) []domain.Section {
	lines := strings.Split(text, "\n")
	var sections []domain.Section
	title := "Preamble"
	var buf []string

	flush := func() {
		joined := strings.Join(buf, "\n")
		if strings.TrimSpace(joined) != "" {
			sections = append(sections, domain.Section{Title: title, Text: joined})
		}
	}

	for _, line := range lines {
		heading := headingTitle(line)
		if heading != "" {
			flush()
			title = heading
			buf = []string{line}
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return sections
}

func headingTitle(line string) string {
	if m := latexSectionRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := mdHeadingRe.FindStringSubmatch(line); m != nil {
		return m[2]
	}
	return ""
}

// SectionChunks splits text into heading-delimited sections and
// sub-windows any section longer than MaxChars. A section of exactly
// MaxChars is kept whole. Ids are "sec<i>" for whole sections and
// "sec<i>_part<p>" for sub-windows; every chunk keeps its section title.
func SectionChunks(text string, params domain.SectionParams) ([]domain.Chunk, error) {
	p := params.WithDefaults()
	if p.OverlapChars >= p.MaxChars {
		return nil, domain.WrapError(domain.ErrValidation, "chunk sections",
			fmt.Errorf("overlap %d must be smaller than max chars %d", p.OverlapChars, p.MaxChars))
	}

	var out []domain.Chunk
	for sIdx, sec := range SplitSections(text) {
		runes := []rune(sec.Text)
		if len(runes) <= p.MaxChars {
			out = append(out, domain.Chunk{
				ID:      fmt.Sprintf("sec%d", sIdx),
				Section: sec.Title,
				Text:    sec.Text,
			})
			continue
		}

		step := p.MaxChars - p.OverlapChars
		part := 0
		for start := 0; start < len(runes); start += step {
			end := start + p.MaxChars
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, domain.Chunk{
				ID:      fmt.Sprintf("sec%d_part%d", sIdx, part),
				Section: sec.Title,
				Text:    string(runes[start:end]),
			})
			part++
		}
	}
	return out, nil
}

// Truncate soft-caps text at limit runes. Zero or negative limits mean no
// cap.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// ErrEmptyText is returned by callers that require non-empty chunk output.
var ErrEmptyText = errors.New("chunking produced zero chunks")
