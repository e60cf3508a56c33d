package chunker

import (
	"context"
	"strings"

	"github.com/seanblong/codenav/pkg/models"
)

// braceLookahead bounds how many lines after a declaration line are searched
// for the opening brace of its body.
const braceLookahead = 5

// Heuristic finds top-level declarations by matching declaration patterns
// line by line. A block ends at its matching closing brace (brace
// languages) or before the next line at the same or lower indentation
// (python), and never runs past the next top-level declaration.
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

func (Heuristic) Spans(_ context.Context, file models.SourceFile, lines []string) ([]Span, error) {
	var spans []Span
	lastEnd := -1
	for i := 0; i < len(lines); {
		d, ok := MatchDeclaration(file.Language, lines[i])
		if !ok {
			i++
			continue
		}

		start := i
		for start-1 > lastEnd && isDecorator(lines[start-1]) && leadingIndent(lines[start-1]) == d.Indent {
			start--
		}

		var end int
		if usesBraces(file.Language) {
			end = braceBlockEnd(lines, i)
		} else {
			end = indentBlockEnd(lines, i, d.Indent)
		}
		if end < 0 {
			end = len(lines) - 1
		}
		for j := i + 1; j <= end; j++ {
			if next, ok := MatchDeclaration(file.Language, lines[j]); ok && next.Indent <= d.Indent {
				end = lastNonBlank(lines, i, j-1)
				break
			}
		}

		spans = append(spans, Span{Start: start + 1, End: end + 1, Kind: d.ChunkKind(), Symbol: d.Name})
		lastEnd = end
		i = end + 1
	}
	return spans, nil
}

func isDecorator(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "@")
}

func lastNonBlank(lines []string, from, to int) int {
	for to > from && strings.TrimSpace(lines[to]) == "" {
		to--
	}
	return to
}

// indentBlockEnd returns the index of the last line of the indentation block
// opened at lines[at]. Lines inside an unbalanced bracket of the header
// (multi-line signatures) belong to the header.
func indentBlockEnd(lines []string, at, indent int) int {
	end := at
	depth := bracketDelta(lines[at])
	for j := at + 1; j < len(lines); j++ {
		t := strings.TrimSpace(lines[j])
		if depth > 0 {
			depth += bracketDelta(lines[j])
			end = j
			continue
		}
		if t == "" {
			continue
		}
		if leadingIndent(lines[j]) <= indent {
			break
		}
		end = j
	}
	return end
}

func bracketDelta(line string) int {
	d := 0
	for _, r := range line {
		switch r {
		case '(', '[', '{':
			d++
		case ')', ']', '}':
			d--
		}
	}
	return d
}

// braceBlockEnd returns the index of the line closing the brace block that
// starts at or shortly after lines[at]. A ';' before any '{' ends the
// declaration on that line. It returns -1 when no block is found.
func braceBlockEnd(lines []string, at int) int {
	depth := 0
	opened := false
	inComment := false
	for j := at; j < len(lines); j++ {
		line := lines[j]
		var quote byte
	scan:
		for k := 0; k < len(line); k++ {
			c := line[k]
			if inComment {
				if c == '*' && k+1 < len(line) && line[k+1] == '/' {
					inComment = false
					k++
				}
				continue
			}
			if quote != 0 {
				if c == '\\' {
					k++
				} else if c == quote {
					quote = 0
				}
				continue
			}
			switch c {
			case '"', '\'', '`':
				quote = c
			case '/':
				if k+1 < len(line) && line[k+1] == '/' {
					break scan
				}
				if k+1 < len(line) && line[k+1] == '*' {
					inComment = true
					k++
				}
			case '{':
				depth++
				opened = true
			case '}':
				depth--
				if opened && depth == 0 {
					return j
				}
			case ';':
				if !opened {
					return j
				}
			}
		}
		if !opened && j-at >= braceLookahead {
			return -1
		}
	}
	return -1
}
