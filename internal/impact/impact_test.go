package impact

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/codenav/internal/chunker"
	"github.com/seanblong/codenav/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func chunksOf(t *testing.T, files map[string]string, order ...string) []models.Chunk {
	t.Helper()
	c := chunker.New(chunker.Options{})
	var out []models.Chunk
	for _, p := range order {
		text, ok := files[p]
		require.True(t, ok, p)
		out = append(out, c.Chunk(context.Background(), models.SourceFile{
			Path:     p,
			Language: chunker.LanguageForPath(p),
			Text:     text,
		})...)
	}
	return out
}

var twoFiles = map[string]string{
	"a.py": "def add(a, b):\n    \"\"\"Return the sum of a and b.\"\"\"\n\n    return a + b\n\n",
	"b.py": "total = add(1, 2)\nprint(total)\n",
}

func TestScan_TwoFiles(t *testing.T) {
	chunks := chunksOf(t, twoFiles, "a.py", "b.py")
	findings := Scan(chunks, "add")

	require.Len(t, findings, 2)
	assert.Equal(t, models.ImpactFinding{
		Symbol: "add", Path: "a.py", Line: 1,
		Kind: models.FindingDefinition, Detail: "function", Text: "def add(a, b):",
	}, findings[0])
	assert.Equal(t, models.ImpactFinding{
		Symbol: "add", Path: "b.py", Line: 1,
		Kind: models.FindingReference, Detail: DetailCall, Text: "total = add(1, 2)",
	}, findings[1])
}

func TestScan_AbsentOrEmptyName(t *testing.T) {
	chunks := chunksOf(t, twoFiles, "a.py", "b.py")
	assert.Empty(t, Scan(chunks, "subtract"))
	assert.Empty(t, Scan(chunks, ""))
	assert.Empty(t, Scan(chunks, "   "))
	assert.Empty(t, Scan(nil, "add"))
}

func TestScan_WholeTokens(t *testing.T) {
	files := map[string]string{
		"m.py": "def adder():\n    my_add = add_one(add$)\n    return self.add(x) + add2\n",
	}
	findings := Scan(chunksOf(t, files, "m.py"), "add")
	require.Len(t, findings, 1)
	assert.Equal(t, 3, findings[0].Line)
	assert.Equal(t, DetailCall, findings[0].Detail)

	// case-sensitive
	assert.Empty(t, Scan(chunksOf(t, files, "m.py"), "Add"))
}

func TestScan_Languages(t *testing.T) {
	files := map[string]string{
		"src/Calc.java": "package demo;\n\nimport demo.util.Adder;\n\npublic class Calc {\n  private Adder adder = new Adder();\n}\n",
		"src/Adder.java": "package demo.util;\n\npublic class Adder {\n  int add(int a, int b) { return a + b; }\n}\n",
		"web/app.js":     "import { Adder } from './adder';\nconst a = Adder;\n",
		"tool.py":        "from calc import Adder as A\n",
	}
	chunks := chunksOf(t, files, "src/Adder.java", "src/Calc.java", "tool.py", "web/app.js")
	findings := Scan(chunks, "Adder")

	type key struct {
		path   string
		line   int
		kind   models.FindingKind
		detail string
	}
	var got []key
	for _, f := range findings {
		got = append(got, key{f.Path, f.Line, f.Kind, f.Detail})
	}
	assert.Equal(t, []key{
		{"src/Adder.java", 3, models.FindingDefinition, "class"},
		{"src/Calc.java", 3, models.FindingDefinition, "import"},
		{"src/Calc.java", 6, models.FindingReference, DetailCall},
		{"tool.py", 1, models.FindingDefinition, "import"},
		{"web/app.js", 1, models.FindingDefinition, "import"},
		{"web/app.js", 2, models.FindingReference, DetailUsage},
	}, got)
}

func TestScan_JavaScriptCallbacksAreReferences(t *testing.T) {
	files := map[string]string{
		"main.js": "add(1, function() {\n});\nsetTimeout(function() {\n}, 10);\n",
	}
	chunks := chunksOf(t, files, "main.js")

	for _, name := range []string{"add", "setTimeout"} {
		findings := Scan(chunks, name)
		require.Len(t, findings, 1, name)
		assert.Equal(t, models.FindingReference, findings[0].Kind, name)
		assert.Equal(t, DetailCall, findings[0].Detail, name)
	}
}

func TestAnalyze(t *testing.T) {
	t.Run("definition and reference", func(t *testing.T) {
		files := map[string]string{
			"a.py": twoFiles["a.py"],
			"b.py": twoFiles["b.py"],
			"c.py": "from a import add\n",
		}
		report := Analyze(chunksOf(t, files, "a.py", "b.py", "c.py"), " add ")
		assert.Equal(t, "add", report.Symbol)
		assert.Len(t, report.Findings, 3)
		assert.Equal(t, []string{"a.py", "b.py", "c.py"}, report.ImpactedFiles)
		assert.Equal(t, "Found definition(s) of 'add' in: a.py. "+
			"The following files reference or import it and may break if the definition changes: b.py, c.py. "+
			"Sample detections: a.py (function); b.py (call); c.py (import).", report.Explanation)
	})

	t.Run("references only", func(t *testing.T) {
		report := Analyze(chunksOf(t, twoFiles, "b.py"), "add")
		assert.Equal(t, []string{"b.py"}, report.ImpactedFiles)
		assert.Contains(t, report.Explanation, "No definition of 'add' was found, but references were detected in: b.py.")
	})

	t.Run("absent name", func(t *testing.T) {
		report := Analyze(chunksOf(t, twoFiles, "a.py", "b.py"), "missing")
		assert.NotNil(t, report.Findings)
		assert.Empty(t, report.Findings)
		assert.NotNil(t, report.ImpactedFiles)
		assert.Empty(t, report.ImpactedFiles)
		assert.Contains(t, report.Explanation, "No uses or definitions of 'missing'")
	})
}

func TestTokenPositions(t *testing.T) {
	tests := []struct {
		line     string
		expected []int
	}{
		{"add", []int{0}},
		{"add(add)", []int{0, 4}},
		{"x.add", []int{2}},
		{"adder", nil},
		{"_add", nil},
		{"$add", nil},
		{"add1", nil},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tokenPositions(tt.line, "add"), tt.line)
	}
}
