package ingestion_engine

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/documind/internal/core"
)

func numberedWords(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "word%d ", i)
		if i%17 == 16 {
			b.WriteString("end. ")
		}
	}
	return strings.TrimSpace(b.String())
}

func TestChunkTextShortInputIsOneChunk(t *testing.T) {
	assert.Equal(t, []string{"hello world"}, ChunkText("hello world", DefaultChunkOptions()))
	assert.Empty(t, ChunkText("", DefaultChunkOptions()))
	assert.Empty(t, ChunkText("   \n  ", DefaultChunkOptions()))
}

func TestChunkTextHardBreaks(t *testing.T) {
	chunks := ChunkText(strings.Repeat("a", 2500), DefaultChunkOptions())

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 900)
}

func TestChunkTextPrefersNewlinePastHalf(t *testing.T) {
	text := strings.Repeat("x", 700) + "\n" + strings.Repeat("y", 700)

	chunks := ChunkText(text, DefaultChunkOptions())

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("x", 700), chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], strings.Repeat("x", 199)+"\n"))
	assert.True(t, strings.HasSuffix(chunks[1], strings.Repeat("y", 700)))
}

func TestChunkTextIgnoresEarlyBoundary(t *testing.T) {
	text := strings.Repeat("x", 300) + "\n" + strings.Repeat("y", 1500)

	chunks := ChunkText(text, DefaultChunkOptions())

	require.NotEmpty(t, chunks)
	assert.Len(t, chunks[0], 1000)
}

func TestChunkTextSizeAndOrder(t *testing.T) {
	text := numberedWords(2000)
	opts := DefaultChunkOptions()

	chunks := ChunkText(text, opts)
	require.Greater(t, len(chunks), 5)

	prev := -1
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), opts.Size+2, "chunk %d too long", i)
		idx := strings.Index(text, c)
		require.GreaterOrEqual(t, idx, 0, "chunk %d is not a slice of the input", i)
		assert.Greater(t, idx, prev, "chunk %d out of order", i)
		prev = idx
	}

	assert.True(t, strings.HasPrefix(text, chunks[0]))
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
}

func TestChunkTextOverlapIsBounded(t *testing.T) {
	text := numberedWords(1500)
	opts := DefaultChunkOptions()

	chunks := ChunkText(text, opts)
	for i := 1; i < len(chunks); i++ {
		prevEnd := strings.Index(text, chunks[i-1]) + len(chunks[i-1])
		start := strings.Index(text, chunks[i])
		assert.LessOrEqual(t, prevEnd-start, opts.Overlap, "chunks %d and %d overlap too much", i-1, i)
	}
}

func TestChunkTextIsDeterministic(t *testing.T) {
	text := numberedWords(900)
	assert.Equal(t, ChunkText(text, DefaultChunkOptions()), ChunkText(text, DefaultChunkOptions()))
}

func TestChunkTextKeepsRunesWhole(t *testing.T) {
	chunks := ChunkText(strings.Repeat("é", 1500), DefaultChunkOptions())

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
	}
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
}

func TestChunkSlidesTagsEverySlide(t *testing.T) {
	slides := []core.SlideText{
		{Number: 1, Text: "Intro"},
		{Number: 2, Text: "Body"},
		{Number: 3, Text: "Conclusion"},
	}

	chunks := ChunkSlides(slides, DefaultChunkOptions())

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		require.NotNil(t, c.PageNumber)
		assert.Equal(t, i+1, *c.PageNumber)
		assert.True(t, strings.HasPrefix(c.Content, SlideHeader(i+1)+"\n"))
	}
	assert.Contains(t, chunks[2].Content, "Conclusion")
}

func TestChunkDocumentPlainText(t *testing.T) {
	doc := &core.ExtractedDocument{Text: "  first\x00 part\n\n\n\nsecond  part ", PageCount: 2}

	records := ChunkDocument(doc, DefaultChunkOptions())

	require.Len(t, records, 1)
	assert.Equal(t, "first part\n\nsecond part", records[0].Content)
	assert.Nil(t, records[0].PageNumber)
}
