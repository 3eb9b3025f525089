package ingestion_engine

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/models"
)

// ChunkOptions tunes the character chunker.
//
// Size:    target characters per chunk.
// Overlap: characters repeated from the end of a chunk at the start of the next.
type ChunkOptions struct {
	Size    int
	Overlap int
}

func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{Size: 1000, Overlap: 200}
}

func (o ChunkOptions) normalized() ChunkOptions {
	if o.Size <= 0 {
		o.Size = 1000
	}
	if o.Overlap < 0 || o.Overlap >= o.Size/2 {
		o.Overlap = o.Size / 5
	}
	return o
}

// ChunkText splits text into overlapping chunks. A chunk ends at the last
// newline, else the last ". ", else the last space before the size limit, as
// long as that boundary lies past half of the chunk. Otherwise it ends at the
// limit. Offsets are counted in runes so multi-byte text is never split inside
// a character.
func ChunkText(text string, opts ChunkOptions) []string {
	opts = opts.normalized()
	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start := 0
	for start < n {
		end := min(start+opts.Size, n)
		chunkEnd := end
		if end < n {
			half := start + opts.Size/2
			if i := lastIndexRunes(runes, []rune("\n"), end); i > half {
				chunkEnd = i + 1
			} else if i := lastIndexRunes(runes, []rune(". "), end); i > half {
				chunkEnd = i + 2
			} else if i := lastIndexRunes(runes, []rune(" "), end); i > half {
				chunkEnd = i + 1
			}
		}

		if c := strings.TrimSpace(string(runes[start:chunkEnd])); c != "" {
			chunks = append(chunks, c)
		}
		if chunkEnd >= n {
			break
		}
		start = max(chunkEnd-opts.Overlap, 0)
	}
	return chunks
}

// lastIndexRunes returns the last index <= from at which sep starts, or -1.
func lastIndexRunes(s, sep []rune, from int) int {
	for i := min(from, len(s)-len(sep)); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Chunk is a chunk of text with its optional 1-based page or slide number.
type Chunk struct {
	Content    string
	PageNumber *int
}

// SlideHeader is the marker placed before each slide's text.
func SlideHeader(n int) string {
	return fmt.Sprintf("--- Slide %d ---", n)
}

// ChunkSlides chunks every slide on its own so each chunk carries the number
// of the slide it came from.
func ChunkSlides(slides []core.SlideText, opts ChunkOptions) []Chunk {
	var out []Chunk
	for _, s := range slides {
		text := Sanitize(SlideHeader(s.Number) + "\n" + s.Text)
		for _, c := range ChunkText(text, opts) {
			n := s.Number
			out = append(out, Chunk{Content: c, PageNumber: &n})
		}
	}
	return out
}

// ChunkDocument sanitizes and chunks an extracted document into the records
// stored by the pipeline. Presentations are chunked per slide.
func ChunkDocument(doc *core.ExtractedDocument, opts ChunkOptions) []models.ChunkRecord {
	if len(doc.Slides) > 0 {
		chunks := ChunkSlides(doc.Slides, opts)
		records := make([]models.ChunkRecord, 0, len(chunks))
		for _, c := range chunks {
			records = append(records, models.ChunkRecord{Content: c.Content, PageNumber: c.PageNumber})
		}
		return records
	}

	parts := ChunkText(Sanitize(doc.Text), opts)
	records := make([]models.ChunkRecord, 0, len(parts))
	for _, p := range parts {
		records = append(records, models.ChunkRecord{Content: p})
	}
	return records
}
