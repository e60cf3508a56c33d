package search

import (
	"fmt"
	"strings"

	"github.com/seanblong/codenav/internal/chunker"
	"github.com/seanblong/codenav/pkg/models"
)

const blockSep = "\n\n"

// Compress renders ranked chunks as one context block. Each chunk loses its
// blank lines and full-line comments and gets a "// File:" header. Blocks
// are concatenated in rank order until maxChars is reached: the first block
// that does not fit is cut at a line boundary and later blocks are dropped.
func Compress(results []models.RetrievalResult, maxChars int) string {
	var sb strings.Builder
	for _, r := range results {
		block := compressChunk(r.Chunk)
		sep := ""
		if sb.Len() > 0 {
			sep = blockSep
		}
		if maxChars > 0 && sb.Len()+len(sep)+len(block) > maxChars {
			if cut := cutLines(block, maxChars-sb.Len()-len(sep)); cut != "" {
				sb.WriteString(sep)
				sb.WriteString(cut)
			}
			break
		}
		sb.WriteString(sep)
		sb.WriteString(block)
	}
	return sb.String()
}

func compressChunk(c models.Chunk) string {
	lines := []string{fmt.Sprintf("// File: %s (lines %d-%d)", c.Path, c.StartLine, c.EndLine)}
	for _, line := range chunker.SplitLines(c.Text) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(c.Language, trimmed) {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	return strings.Join(lines, "\n")
}

// cutLines returns the longest prefix of block made of whole lines that fits
// in budget bytes.
func cutLines(block string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if len(block) <= budget {
		return block
	}
	cut := block[:budget]
	if block[budget] == '\n' {
		return cut
	}
	i := strings.LastIndexByte(cut, '\n')
	if i < 0 {
		return ""
	}
	return cut[:i]
}

func isComment(lang, trimmed string) bool {
	switch lang {
	case chunker.LangPython:
		return strings.HasPrefix(trimmed, "#")
	case chunker.LangJava, chunker.LangJavaScript:
		return strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, "*/") ||
			strings.HasPrefix(trimmed, "* ") ||
			trimmed == "*"
	}
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#")
}
