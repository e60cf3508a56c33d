package chunker

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

const (
	LangPython     = "python"
	LangJava       = "java"
	LangJavaScript = "javascript"
)

var extToLanguage = map[string]string{
	".py":   LangPython,
	".pyi":  LangPython,
	".java": LangJava,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".ts":   "typescript",
	".tsx":  "typescript",
	".go":   "go",
	".rb":   "ruby",
	".sh":   "shell",
}

var (
	grammars     map[string]*sitter.Language
	grammarsOnce sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		grammars = map[string]*sitter.Language{
			LangPython:     python.GetLanguage(),
			LangJava:       java.GetLanguage(),
			LangJavaScript: javascript.GetLanguage(),
		}
	})
}

// LanguageForPath returns the language tag for a file path. Unknown
// extensions map to the bare extension so they still get a stable tag.
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extToLanguage[ext]; ok {
		return lang
	}
	return strings.TrimPrefix(ext, ".")
}

// grammarFor returns the tree-sitter grammar for lang, if one is compiled in.
func grammarFor(lang string) (*sitter.Language, bool) {
	initGrammars()
	g, ok := grammars[lang]
	return g, ok
}

// usesBraces reports whether blocks in lang are delimited by braces rather
// than indentation.
func usesBraces(lang string) bool {
	return lang != LangPython
}
