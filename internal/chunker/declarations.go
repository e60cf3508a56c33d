package chunker

import (
	"regexp"
	"strings"

	"github.com/seanblong/codenav/pkg/models"
)

// DeclKind is the kind of construct a declaration line introduces.
type DeclKind string

const (
	DeclFunction DeclKind = "function"
	DeclClass    DeclKind = "class"
	DeclImport   DeclKind = "import"
)

// Declaration is a line recognised as introducing a named construct.
type Declaration struct {
	Name   string
	Kind   DeclKind
	Indent int
}

// ChunkKind maps the declaration onto the chunk kind it produces.
func (d Declaration) ChunkKind() models.ChunkKind {
	if d.Kind == DeclClass {
		return models.KindClass
	}
	return models.KindFunction
}

type declPattern struct {
	re   *regexp.Regexp
	kind DeclKind
}

// Every pattern captures the indentation as group 1 and the name as group 2.
var declPatterns = map[string][]declPattern{
	LangPython: {
		{regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`), DeclFunction},
		{regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)\s*[(:]`), DeclClass},
	},
	LangJava: {
		{regexp.MustCompile(`^(\s*)(?:@\w+(?:\([^)]*\))?\s+)*(?:(?:public|protected|private|static|abstract|final|sealed|non-sealed|strictfp)\s+)*(?:class|interface|enum|record|@interface)\s+([A-Za-z_$][\w$]*)`), DeclClass},
		{regexp.MustCompile(`^(\s*)(?:(?:public|protected|private|static|abstract|final|synchronized|native|default|strictfp)\s+)+(?:<[^>]+>\s+)?(?:[\w$.?\[\]]+(?:<[^()]*?>)?(?:\[\])*\s+)?([A-Za-z_$][\w$]*)\s*\(`), DeclFunction},
	},
	LangJavaScript: {
		{regexp.MustCompile(`^(\s*)(?:export\s+(?:default\s+)?)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`), DeclFunction},
		{regexp.MustCompile(`^(\s*)(?:export\s+(?:default\s+)?)?class\s+([A-Za-z_$][\w$]*)`), DeclClass},
		{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`), DeclFunction},
		{regexp.MustCompile(`^(\s*)(?:[A-Za-z_$][\w$]*\.)*([A-Za-z_$][\w$]*)\s*[:=]\s*(?:async\s+)?function\b`), DeclFunction},
		// method shorthand; a call passing a callback or a string is not one
		{regexp.MustCompile(`^(\s*)(?:static\s+)?(?:async\s+)?\*?([A-Za-z_$][\w$]*)\s*\([^()'"` + "`" + `]*\)\s*\{`), DeclFunction},
	},
}

var genericPatterns = []declPattern{
	{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:pub\s+)?(?:async\s+)?(?:def|func|function|fn|sub)\s+(?:\([^)]*\)\s*)?([A-Za-z_$][\w$]*)`), DeclFunction},
	{regexp.MustCompile(`^(\s*)(?:export\s+)?(?:pub\s+|public\s+|private\s+)?(?:abstract\s+)?(?:class|struct|interface|trait|module)\s+([A-Za-z_$][\w$]*)`), DeclClass},
}

// Words that look like a call followed by a block but are control flow.
var notNames = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "function": true, "with": true, "else": true, "do": true,
	"try": true, "finally": true, "new": true, "typeof": true, "await": true,
	"synchronized": true, "super": true, "this": true,
}

func patternsFor(lang string) []declPattern {
	if p, ok := declPatterns[lang]; ok {
		return p
	}
	return genericPatterns
}

// MatchDeclaration reports whether line declares a function or class in lang.
func MatchDeclaration(lang, line string) (Declaration, bool) {
	for _, p := range patternsFor(lang) {
		m := p.re.FindStringSubmatch(line)
		if m == nil || notNames[m[2]] {
			continue
		}
		return Declaration{Name: m[2], Kind: p.kind, Indent: indentOf(m[1])}, true
	}
	return Declaration{}, false
}

var (
	pyFromImport = regexp.MustCompile(`^\s*from\s+[\w.]+\s+import\s+(.+)$`)
	pyImport     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	javaImport   = regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.$]+?)(?:\.\*)?\s*;`)
	jsImport     = regexp.MustCompile(`^\s*import\s+(.+?)\s+from\s+['"]`)
	jsRequire    = regexp.MustCompile(`^\s*(?:const|let|var)\s+(.+?)\s*=\s*require\(`)
	aliasSplit   = regexp.MustCompile(`\s+as\s+`)
)

// MatchImports returns the names a line brings into scope through an import
// statement, or nil when the line is not an import.
func MatchImports(lang, line string) []string {
	switch lang {
	case LangPython:
		if m := pyFromImport.FindStringSubmatch(line); m != nil {
			return splitNames(strings.Trim(m[1], "() \t\\"))
		}
		if m := pyImport.FindStringSubmatch(line); m != nil {
			var out []string
			for _, n := range splitNames(m[1]) {
				out = append(out, n)
				if i := strings.LastIndex(n, "."); i >= 0 {
					out = append(out, n[i+1:])
				}
			}
			return out
		}
	case LangJava:
		if m := javaImport.FindStringSubmatch(line); m != nil {
			name := m[1]
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			return []string{name}
		}
	case LangJavaScript:
		if m := jsImport.FindStringSubmatch(line); m != nil {
			return splitNames(strings.NewReplacer("{", ",", "}", ",", "*", "").Replace(m[1]))
		}
		if m := jsRequire.FindStringSubmatch(line); m != nil {
			return splitNames(strings.Trim(m[1], "{} "))
		}
	}
	return nil
}

// splitNames splits "a, b as c" into [a b c].
func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		for _, n := range aliasSplit.Split(strings.TrimSpace(part), -1) {
			n = strings.TrimSpace(n)
			if n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

func indentOf(ws string) int {
	n := 0
	for _, r := range ws {
		if r == '\t' {
			n += 4
		} else {
			n++
		}
	}
	return n
}

// leadingIndent returns the indentation width of line.
func leadingIndent(line string) int {
	return indentOf(line[:len(line)-len(strings.TrimLeft(line, " \t"))])
}
