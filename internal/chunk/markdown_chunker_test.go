package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkdownChunkerEmptyContent(t *testing.T) {
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "empty.md", Content: []byte("   \n\n  ")})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestMarkdownChunkerSingleSmallSection(t *testing.T) {
	c := NewMarkdownChunker()
	content := "# Title\n\nThis is a short paragraph of content.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(content)})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "Title", chunks[0].Metadata["section_title"])
}

func TestMarkdownChunkerFrontmatter(t *testing.T) {
	c := NewMarkdownChunker()
	content := "---\ntitle: Hello\n---\n\n# Section\n\nBody text.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(content)})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	require.Equal(t, "frontmatter", chunks[0].Metadata["type"])
}

func TestMarkdownChunkerSplitsLargeSectionWithinTolerance(t *testing.T) {
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{ChunkSize: 500, Overlap: 50})

	var b strings.Builder
	b.WriteString("# Big Section\n\n")
	for i := 0; i < 40; i++ {
		b.WriteString("This paragraph adds a reasonable amount of filler text to the section body. ")
		b.WriteString("\n\n")
	}

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "big.md", Content: []byte(b.String())})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	upper := int(float64(500) * 1.15)
	for _, ch := range chunks {
		require.LessOrEqual(t, len(ch.Content), upper)
	}
}

func TestMarkdownChunkerNeverSplitsInsideFencedCodeBlock(t *testing.T) {
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{ChunkSize: 50, Overlap: 10})
	content := "# Code\n\n```go\nfunc main() {\n\tfmt.Println(\"hello world, this is a long line of code\")\n}\n```\n"

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "code.md", Content: []byte(content)})
	require.NoError(t, err)

	for _, ch := range chunks {
		fenceCount := strings.Count(ch.Content, "```")
		require.True(t, fenceCount == 0 || fenceCount%2 == 0, "fenced block split across chunk boundary: %q", ch.Content)
	}
}

func TestMarkdownChunkerNoHeadersFallsBackToParagraphs(t *testing.T) {
	c := NewMarkdownChunker()
	content := "Paragraph one.\n\nParagraph two.\n\nParagraph three.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "flat.md", Content: []byte(content)})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0].Content, "Paragraph one")
}

func TestExtractCodeExamplesFiltersBySize(t *testing.T) {
	content := "intro text\n\n```python\nx = 1\n```\n\nmore text\n\n```python\n" +
		strings.Repeat("y = y + 1\n", 50) + "```\n"

	examples := ExtractCodeExamples(content, 300, 100)
	require.Len(t, examples, 1)
	require.Equal(t, "python", examples[0].Language)
}

func TestGenerateChunkIDStableForSameContent(t *testing.T) {
	id1 := generateChunkID("a.md", "same content")
	id2 := generateChunkID("a.md", "same content")
	id3 := generateChunkID("b.md", "same content")
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}
