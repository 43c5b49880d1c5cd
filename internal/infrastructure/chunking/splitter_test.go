package chunking

import (
	"strings"
	"testing"

	"github.com/Whisker2257/casa/internal/core/domain"
)

func TestChunkTextWindows(t *testing.T) {
	chunks, err := ChunkText("abcdefghij", domain.ChunkParams{ChunkSize: 4, Overlap: 1})
	if err != nil {
		t.Fatalf("ChunkText() error = %v", err)
	}

	want := []string{"abcd", "defg", "ghij", "j"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, chunk := range chunks {
		if chunk.Text != want[i] {
			t.Errorf("chunk[%d].Text = %q, want %q", i, chunk.Text, want[i])
		}
		if wantID := []string{"0", "1", "2", "3"}[i]; chunk.ID != wantID {
			t.Errorf("chunk[%d].ID = %q, want %q", i, chunk.ID, wantID)
		}
	}
}

func TestChunkTextDeterministic(t *testing.T) {
	text := strings.Repeat("research text in overlapping windows ", 200)
	params := domain.ChunkParams{ChunkSize: 500, Overlap: 100}

	first, err := ChunkText(text, params)
	if err != nil {
		t.Fatalf("ChunkText() error = %v", err)
	}
	second, err := ChunkText(text, params)
	if err != nil {
		t.Fatalf("ChunkText() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

// Dropping the overlapped prefix of every chunk after the first must
// reconstruct the input exactly.
func TestChunkTextReconstruction(t *testing.T) {
	text := strings.Repeat("reconstruction of the original input из перекрывающихся окон ", 50)
	params := domain.ChunkParams{ChunkSize: 300, Overlap: 70}

	chunks, err := ChunkText(text, params)
	if err != nil {
		t.Fatalf("ChunkText() error = %v", err)
	}

	var sb strings.Builder
	for i, chunk := range chunks {
		runes := []rune(chunk.Text)
		if i == 0 {
			sb.WriteString(chunk.Text)
			continue
		}
		if len(runes) <= params.Overlap {
			continue
		}
		sb.WriteString(string(runes[params.Overlap:]))
	}
	if sb.String() != text {
		t.Fatalf("reconstructed text does not match input")
	}
}

func TestChunkTextRunesNotBytes(t *testing.T) {
	chunks, err := ChunkText("ααββγγ", domain.ChunkParams{ChunkSize: 2, Overlap: 1})
	if err != nil {
		t.Fatalf("ChunkText() error = %v", err)
	}
	if chunks[0].Text != "αα" {
		t.Errorf("chunk[0].Text = %q, want %q", chunks[0].Text, "αα")
	}
}

func TestChunkTextRejectsOverlapNotSmallerThanSize(t *testing.T) {
	for _, overlap := range []int{10, 15} {
		_, err := ChunkText("some text", domain.ChunkParams{ChunkSize: 10, Overlap: overlap})
		if err == nil {
			t.Fatalf("overlap=%d: expected error", overlap)
		}
		if !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("overlap=%d: expected ErrValidation, got %v", overlap, err)
		}
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	chunks, err := ChunkText("", domain.ChunkParams{ChunkSize: 10, Overlap: 2})
	if err != nil {
		t.Fatalf("ChunkText() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("got %d chunks for empty input, want 0", len(chunks))
	}
}

func TestSplitSectionsHeadingStyles(t *testing.T) {
	text := "intro line\n\\section*{Methods}\nmethod body\n## Results\nresult body"
	sections := SplitSections(text)

	wantTitles := []string{"Preamble", "Methods", "Results"}
	if len(sections) != len(wantTitles) {
		t.Fatalf("got %d sections, want %d", len(sections), len(wantTitles))
	}
	for i, title := range wantTitles {
		if sections[i].Title != title {
			t.Errorf("section[%d].Title = %q, want %q", i, sections[i].Title, title)
		}
	}
	if !strings.Contains(sections[1].Text, "method body") {
		t.Errorf("Methods section lost its body: %q", sections[1].Text)
	}
}

func TestSplitSectionsWithoutHeadings(t *testing.T) {
	sections := SplitSections("just a paragraph\nwithout any headings")
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Title != "Preamble" {
		t.Errorf("title = %q, want Preamble", sections[0].Title)
	}
}

func TestSectionChunksBoundary(t *testing.T) {
	params := domain.SectionParams{MaxChars: 100, OverlapChars: 20}

	exact := "# A\n" + strings.Repeat("x", 96)
	chunks, err := SectionChunks(exact, params)
	if err != nil {
		t.Fatalf("SectionChunks() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("section of exactly max chars: got %d chunks, want 1", len(chunks))
	}
	if chunks[0].ID != "sec0" {
		t.Errorf("chunk ID = %q, want sec0", chunks[0].ID)
	}

	over := "# A\n" + strings.Repeat("x", 97)
	chunks, err = SectionChunks(over, params)
	if err != nil {
		t.Fatalf("SectionChunks() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("section one over max chars: got %d chunks, want >= 2", len(chunks))
	}
	if chunks[0].ID != "sec0_part0" || chunks[1].ID != "sec0_part1" {
		t.Errorf("sub-window ids = %q, %q", chunks[0].ID, chunks[1].ID)
	}
}

func TestSectionChunksKeepTitles(t *testing.T) {
	text := "## Background\nshort\n## Evaluation\n" + strings.Repeat("y", 5000)
	chunks, err := SectionChunks(text, domain.SectionParams{MaxChars: 3200, OverlapChars: 1000})
	if err != nil {
		t.Fatalf("SectionChunks() error = %v", err)
	}
	for _, chunk := range chunks {
		if chunk.Section != "Background" && chunk.Section != "Evaluation" {
			t.Errorf("chunk %s has unexpected section %q", chunk.ID, chunk.Section)
		}
	}
}

func TestSectionChunksRejectsOverlapNotSmallerThanMax(t *testing.T) {
	_, err := SectionChunks("text", domain.SectionParams{MaxChars: 50, OverlapChars: 50})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("привет мир", 6); got != "привет" {
		t.Errorf("Truncate = %q, want %q", got, "привет")
	}
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("Truncate = %q, want unchanged", got)
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Errorf("Truncate with zero limit = %q, want unchanged", got)
	}
}
