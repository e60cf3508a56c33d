// Package impact lists where a symbol is declared and used across the
// ingested chunks.
//
// The scan is textual. Every whole-token occurrence of the name is reported;
// there is no scope resolution and no binding across files, so shadowed or
// unrelated identifiers with the same name are listed too.
package impact

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/seanblong/codenav/internal/chunker"
	"github.com/seanblong/codenav/pkg/models"
)

const (
	DetailCall  = "call"
	DetailUsage = "usage"
)

// maxSamples bounds the files quoted in an explanation.
const maxSamples = 5

// Scan returns one finding per chunk line that contains name as a whole
// token, in chunk order. A line is a definition when the chunker's
// declaration or import patterns for the chunk's language bind name on it.
func Scan(chunks []models.Chunk, name string) []models.ImpactFinding {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	var out []models.ImpactFinding
	for _, c := range chunks {
		if !strings.Contains(c.Text, name) {
			continue
		}
		for i, line := range chunker.SplitLines(c.Text) {
			positions := tokenPositions(line, name)
			if len(positions) == 0 {
				continue
			}
			kind, detail := classify(c.Language, line, name, positions)
			out = append(out, models.ImpactFinding{
				Symbol: name,
				Path:   c.Path,
				Line:   c.StartLine + i,
				Kind:   kind,
				Detail: detail,
				Text:   strings.TrimSpace(line),
			})
		}
	}
	return out
}

// Analyze scans chunks for name and summarises the affected files.
func Analyze(chunks []models.Chunk, name string) models.ImpactReport {
	name = strings.TrimSpace(name)
	findings := Scan(chunks, name)
	if findings == nil {
		findings = []models.ImpactFinding{}
	}
	files := impactedFiles(findings)
	return models.ImpactReport{
		Symbol:        name,
		Findings:      findings,
		ImpactedFiles: files,
		Explanation:   explain(name, findings, files),
	}
}

func classify(lang, line, name string, positions []int) (models.FindingKind, string) {
	if decl, ok := chunker.MatchDeclaration(lang, line); ok && decl.Name == name {
		return models.FindingDefinition, string(decl.Kind)
	}
	for _, imported := range chunker.MatchImports(lang, line) {
		if imported == name {
			return models.FindingDefinition, string(chunker.DeclImport)
		}
	}
	for _, p := range positions {
		rest := strings.TrimLeft(line[p+len(name):], " \t")
		if strings.HasPrefix(rest, "(") {
			return models.FindingReference, DetailCall
		}
	}
	return models.FindingReference, DetailUsage
}

// tokenPositions returns the byte offsets at which name occurs in line
// delimited by non-identifier characters.
func tokenPositions(line, name string) []int {
	var out []int
	for from := 0; from <= len(line)-len(name); {
		i := strings.Index(line[from:], name)
		if i < 0 {
			break
		}
		at := from + i
		end := at + len(name)
		if (at == 0 || !isIdent(line[at-1])) && (end == len(line) || !isIdent(line[end])) {
			out = append(out, at)
		}
		from = at + 1
	}
	return out
}

func isIdent(b byte) bool {
	return b == '_' || b == '$' ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func impactedFiles(findings []models.ImpactFinding) []string {
	seen := map[string]bool{}
	files := []string{}
	for _, f := range findings {
		if !seen[f.Path] {
			seen[f.Path] = true
			files = append(files, f.Path)
		}
	}
	sort.Strings(files)
	return files
}

func explain(name string, findings []models.ImpactFinding, files []string) string {
	if len(findings) == 0 {
		return fmt.Sprintf("No uses or definitions of '%s' were found in the ingested files. "+
			"Changing it is unlikely to break the scanned code, but consumers outside the repository may be affected.", name)
	}

	defining := map[string]bool{}
	details := map[string][]string{}
	for _, f := range findings {
		if f.Kind == models.FindingDefinition && f.Detail != string(chunker.DeclImport) {
			defining[f.Path] = true
		}
		if !slices.Contains(details[f.Path], f.Detail) {
			details[f.Path] = append(details[f.Path], f.Detail)
		}
	}

	var defs, others []string
	for _, p := range files {
		if defining[p] {
			defs = append(defs, p)
		} else {
			others = append(others, p)
		}
	}

	var parts []string
	if len(defs) > 0 {
		parts = append(parts, fmt.Sprintf("Found definition(s) of '%s' in: %s.", name, strings.Join(defs, ", ")))
		if len(others) > 0 {
			parts = append(parts, fmt.Sprintf("The following files reference or import it and may break if the definition changes: %s.",
				strings.Join(others, ", ")))
		}
	} else {
		parts = append(parts, fmt.Sprintf("No definition of '%s' was found, but references were detected in: %s.",
			name, strings.Join(others, ", ")))
	}

	var samples []string
	for i, p := range files {
		if i == maxSamples {
			break
		}
		d := details[p]
		if len(d) > 3 {
			d = d[:3]
		}
		samples = append(samples, fmt.Sprintf("%s (%s)", p, strings.Join(d, ", ")))
	}
	parts = append(parts, "Sample detections: "+strings.Join(samples, "; ")+".")
	return strings.Join(parts, " ")
}
