package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MarkdownChunkerOptions configures the markdown chunker behavior.
type MarkdownChunkerOptions struct {
	ChunkSize int // target chars per chunk (default: DefaultChunkSize)
	Overlap   int // chars of trailing context carried into the next chunk (default: DefaultOverlap)
}

// MarkdownChunker implements header-boundary-first Markdown chunking: it
// prefers to break at header boundaries, falls back to paragraph breaks when
// a section is too large, and never splits inside a fenced code block. A
// single paragraph larger than the size tolerance is kept whole as its own
// chunk; paragraphs are not split at sentence boundaries or hard-cut.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

var (
	// Matches headers: # Title, ## Title, etc.
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

	// Matches fenced code blocks (including metadata)
	codeBlockPattern = regexp.MustCompile("(?s)```[^`]*```")

	// Matches MDX self-closing components: <Component ... />
	mdxSelfClosingPattern = regexp.MustCompile(`<[A-Z][a-zA-Z0-9]*[^>]*/\s*>`)

	// Matches tables (header row with |)
	tablePattern = regexp.MustCompile(`(?m)^\|.+\|$(\n^\|[-:|]+\|$)?(\n^\|.+\|$)*`)

	// Matches sentence boundaries for the last-resort split fallback.
	sentenceBoundary = regexp.MustCompile(`(?s)[.!?]\s+`)
)

// NewMarkdownChunker creates a chunker with the reference target size and overlap.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a chunker with custom size/overlap.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Overlap == 0 {
		opts.Overlap = DefaultOverlap
	}
	return &MarkdownChunker{options: opts}
}

// Close releases chunker resources. MarkdownChunker is stateless; this is a
// no-op kept for interface parity with stateful chunkers.
func (c *MarkdownChunker) Close() {}

// SupportedExtensions returns file extensions this chunker handles.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Chunk splits a markdown document into semantic chunks.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var chunks []*Chunk
	now := time.Now()
	remaining := content

	if fm := frontmatterPattern.FindStringSubmatch(remaining); fm != nil {
		frontmatter := fm[0]
		chunks = append(chunks, c.createFrontmatterChunk(file, frontmatter, now))
		remaining = remaining[len(frontmatter):]
	}

	sections := c.parseSections(remaining)
	if len(sections) == 0 {
		return append(chunks, c.chunkByParagraphs(file, remaining, "", 1, now)...), nil
	}

	baseLineOffset := 1
	if len(chunks) > 0 && chunks[0].Metadata["type"] == "frontmatter" {
		baseLineOffset = strings.Count(content[:len(content)-len(remaining)], "\n") + 1
	}

	for _, sec := range sections {
		chunks = append(chunks, c.createSectionChunks(file, sec, baseLineOffset, now)...)
	}

	return chunks, nil
}

type section struct {
	headerLevel int
	headerTitle string
	headerPath  string
	content     string
	startLine   int
}

func (c *MarkdownChunker) parseSections(content string) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	headerStack := make([]string, 6)

	var current *section
	var builder strings.Builder

	for lineNum, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			if current != nil {
				current.content = builder.String()
				sections = append(sections, current)
				builder.Reset()
			}

			level := len(match[1])
			title := strings.TrimSpace(match[2])

			headerStack[level-1] = title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			var parts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					parts = append(parts, headerStack[i])
				}
			}

			current = &section{
				headerLevel: level,
				headerTitle: title,
				headerPath:  strings.Join(parts, " > "),
				startLine:   lineNum,
			}
			builder.WriteString(line)
			builder.WriteString("\n")
		} else {
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}

	if current != nil {
		current.content = builder.String()
		sections = append(sections, current)
	}

	return sections
}

func (c *MarkdownChunker) createFrontmatterChunk(file *FileInput, content string, now time.Time) *Chunk {
	lineCount := strings.Count(content, "\n")
	if lineCount == 0 {
		lineCount = 1
	}
	return &Chunk{
		ID:          generateChunkID(file.Path, content),
		FilePath:    file.Path,
		Content:     content,
		RawContent:  content,
		ContentType: ContentTypeMarkdown,
		Language:    "markdown",
		StartLine:   1,
		EndLine:     lineCount,
		Metadata: map[string]string{
			"type":         "frontmatter",
			"header_path":  "",
			"header_level": "0",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// createSectionChunks emits one chunk per section if it fits within the
// target size tolerance, otherwise splits the section further.
func (c *MarkdownChunker) createSectionChunks(file *FileInput, sec *section, baseLineOffset int, now time.Time) []*Chunk {
	content := strings.TrimRight(sec.content, "\n")

	trimmed := strings.TrimSpace(content)
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= 1 && headerPattern.MatchString(trimmed) {
		return []*Chunk{}
	}

	upperBound := int(float64(c.options.ChunkSize) * (1 + ChunkSizeVariance))

	if len(content) <= upperBound {
		startLine := baseLineOffset + sec.startLine
		endLine := startLine + strings.Count(content, "\n")
		return []*Chunk{{
			ID:          generateChunkID(file.Path, content),
			FilePath:    file.Path,
			Content:     content,
			RawContent:  content,
			ContentType: ContentTypeMarkdown,
			Language:    "markdown",
			StartLine:   startLine,
			EndLine:     endLine,
			Metadata: map[string]string{
				"header_path":   sec.headerPath,
				"header_level":  strconv.Itoa(sec.headerLevel),
				"section_title": sec.headerTitle,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}}
	}

	startLine := baseLineOffset + sec.startLine
	return c.splitLargeSection(file, sec, content, startLine, now)
}

// splitLargeSection breaks an oversized section into chunks of roughly
// ChunkSize chars, preferring paragraph boundaries, carrying Overlap chars of
// trailing context into the next chunk, and never splitting inside a fenced
// code block, table, or MDX component.
func (c *MarkdownChunker) splitLargeSection(file *FileInput, sec *section, content string, startLine int, now time.Time) []*Chunk {
	atomicBlocks := c.findAtomicBlocks(content)
	paragraphs := c.splitByParagraphs(content, atomicBlocks)

	var chunks []*Chunk
	var current strings.Builder
	currentStartLine := startLine
	lineCount := 0
	var overlapCarry string

	flush := func() {
		if current.Len() == 0 {
			return
		}
		body := strings.TrimRight(current.String(), "\n ")
		chunks = append(chunks, c.createChunkFromContent(file, sec, body, currentStartLine, lineCount, now))
		overlapCarry = lastNChars(body, c.options.Overlap)
		current.Reset()
		currentStartLine = startLine + lineCount
	}

	for _, para := range paragraphs {
		paraLines := strings.Count(para, "\n") + 1

		// A single paragraph too big on its own (e.g. a long fenced block)
		// becomes its own chunk rather than being split mid-block.
		if len(para) > upperBoundChars(c.options) && current.Len() == 0 {
			chunks = append(chunks, c.createChunkFromContent(file, sec, para, currentStartLine, paraLines, now))
			overlapCarry = lastNChars(para, c.options.Overlap)
			currentStartLine += paraLines + 1
			lineCount = 0
			continue
		}

		if current.Len() > 0 && current.Len()+len(para) > upperBoundChars(c.options) {
			flush()
			if overlapCarry != "" {
				current.WriteString(overlapCarry)
				current.WriteString("\n\n")
			}
		}

		current.WriteString(para)
		current.WriteString("\n\n")
		lineCount += paraLines + 1
	}

	flush()

	return chunks
}

func upperBoundChars(opts MarkdownChunkerOptions) int {
	return int(float64(opts.ChunkSize) * (1 + ChunkSizeVariance))
}

// lastNChars returns the trailing n chars of s, breaking at the nearest
// preceding sentence boundary so overlap doesn't start mid-sentence.
func lastNChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	tail := s[len(s)-n:]
	if loc := sentenceBoundary.FindAllStringIndex(tail, -1); len(loc) > 0 {
		last := loc[len(loc)-1]
		return strings.TrimSpace(tail[last[1]:])
	}
	return strings.TrimSpace(tail)
}

func (c *MarkdownChunker) findAtomicBlocks(content string) [][]int {
	var blocks [][]int
	blocks = append(blocks, codeBlockPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, tablePattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, mdxSelfClosingPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, c.findMDXBlockComponents(content)...)
	return blocks
}

func (c *MarkdownChunker) findMDXBlockComponents(content string) [][]int {
	var locs [][]int
	openTagPattern := regexp.MustCompile(`<([A-Z][a-zA-Z0-9]*)[^/>]*>`)
	matches := openTagPattern.FindAllStringSubmatchIndex(content, -1)

	for _, match := range matches {
		if len(match) >= 4 {
			tagName := content[match[2]:match[3]]
			closeTag := "</" + tagName + ">"
			startPos := match[0]
			if closePos := strings.Index(content[match[1]:], closeTag); closePos != -1 {
				endPos := match[1] + closePos + len(closeTag)
				locs = append(locs, []int{startPos, endPos})
			}
		}
	}
	return locs
}

// splitByParagraphs splits on blank lines, then re-merges any paragraph that
// was cut in the middle of an unclosed fenced code block.
func (c *MarkdownChunker) splitByParagraphs(content string, atomicBlocks [][]int) []string {
	parts := strings.Split(content, "\n\n")

	var paragraphs []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return c.mergeAtomicBlocks(paragraphs)
}

func (c *MarkdownChunker) mergeAtomicBlocks(paragraphs []string) []string {
	var result []string
	var inCodeBlock bool
	var builder strings.Builder

	for _, para := range paragraphs {
		if inCodeBlock {
			builder.WriteString("\n\n")
			builder.WriteString(para)
			if strings.Contains(para, "```") {
				result = append(result, builder.String())
				builder.Reset()
				inCodeBlock = false
			}
			continue
		}

		if openCount := strings.Count(para, "```"); openCount > 0 && openCount%2 == 1 {
			inCodeBlock = true
			builder.WriteString(para)
			continue
		}

		result = append(result, para)
	}

	if inCodeBlock {
		result = append(result, builder.String())
	}

	return result
}

func (c *MarkdownChunker) createChunkFromContent(file *FileInput, sec *section, content string, startLine, lineCount int, now time.Time) *Chunk {
	content = strings.TrimRight(content, "\n ")
	return &Chunk{
		ID:          generateChunkID(file.Path, content),
		FilePath:    file.Path,
		Content:     content,
		RawContent:  content,
		ContentType: ContentTypeMarkdown,
		Language:    "markdown",
		StartLine:   startLine,
		EndLine:     startLine + lineCount,
		Metadata: map[string]string{
			"header_path":   sec.headerPath,
			"header_level":  strconv.Itoa(sec.headerLevel),
			"section_title": sec.headerTitle,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// chunkByParagraphs handles documents with no headers at all.
func (c *MarkdownChunker) chunkByParagraphs(file *FileInput, content, headerPath string, startLine int, now time.Time) []*Chunk {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []*Chunk
	var current strings.Builder
	currentStartLine := startLine
	lineCount := 0
	upper := upperBoundChars(c.options)

	flush := func() {
		if current.Len() == 0 {
			return
		}
		body := current.String()
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, body),
			FilePath:    file.Path,
			Content:     body,
			RawContent:  body,
			ContentType: ContentTypeMarkdown,
			Language:    "markdown",
			StartLine:   currentStartLine,
			EndLine:     currentStartLine + lineCount,
			Metadata: map[string]string{
				"header_path":   headerPath,
				"header_level":  "0",
				"section_title": "",
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
		current.Reset()
		currentStartLine = startLine + lineCount
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		paraLines := strings.Count(para, "\n") + 1

		if current.Len() > 0 && current.Len()+len(para) > upper {
			flush()
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		lineCount += paraLines + 1
	}

	flush()

	return chunks
}

// generateChunkID derives a stable, content-addressable chunk ID from the
// source path and content: same content in the same path always yields the
// same ID, so re-ingesting unchanged pages doesn't churn vector store rows.
func generateChunkID(path, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]
	input := fmt.Sprintf("%s:%s", path, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
