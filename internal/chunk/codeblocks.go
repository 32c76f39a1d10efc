package chunk

import (
	"regexp"
	"strings"
)

// CodeExample is a fenced code block pulled out of markdown content for
// separate embedding and retrieval, alongside a short natural-language
// summary of what it does.
type CodeExample struct {
	Code      string
	Language  string
	Context   string // surrounding prose, captured for the summary step
	StartLine int
	EndLine   int
}

var fencedBlockPattern = regexp.MustCompile("(?m)^```([a-zA-Z0-9_+-]*)\\n([\\s\\S]*?)\\n```")

// ExtractCodeExamples finds fenced code blocks of at least minChars
// characters and returns each with surroundingChars of prose context
// captured from before and after the block.
func ExtractCodeExamples(content string, minChars, surroundingChars int) []*CodeExample {
	matches := fencedBlockPattern.FindAllStringSubmatchIndex(content, -1)
	var examples []*CodeExample

	for _, m := range matches {
		fullStart, fullEnd := m[0], m[1]
		langStart, langEnd := m[2], m[3]
		codeStart, codeEnd := m[4], m[5]

		code := content[codeStart:codeEnd]
		if len(code) < minChars {
			continue
		}

		language := strings.TrimSpace(content[langStart:langEnd])

		beforeStart := fullStart - surroundingChars
		if beforeStart < 0 {
			beforeStart = 0
		}
		afterEnd := fullEnd + surroundingChars
		if afterEnd > len(content) {
			afterEnd = len(content)
		}

		context := strings.TrimSpace(content[beforeStart:fullStart]) + "\n" + strings.TrimSpace(content[fullEnd:afterEnd])

		examples = append(examples, &CodeExample{
			Code:      code,
			Language:  language,
			Context:   strings.TrimSpace(context),
			StartLine: strings.Count(content[:fullStart], "\n") + 1,
			EndLine:   strings.Count(content[:fullEnd], "\n") + 1,
		})
	}

	return examples
}
