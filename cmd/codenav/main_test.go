package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/codenav/internal/auth"
	"github.com/seanblong/codenav/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func twoFileRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def add(a, b):\n    return a + b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.py"), []byte("print(add(1, 2))\n"), 0o644))
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// isolate from config files and env of the machine running the tests
	t.Chdir(t.TempDir())
	t.Setenv("CODENAV_CONFIG", "")
	t.Setenv("CODENAV_LOG_LEVEL", "disabled")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--index-backend", "bruteforce", "--provider", "stub"))
	err := root.Execute()
	return out.String(), err
}

func TestImpactCommand(t *testing.T) {
	out, err := run(t, "impact", twoFileRepo(t), "add")
	require.NoError(t, err)
	assert.Contains(t, out, "Impact of add")
	assert.Contains(t, out, "a.py:1 definition (function)")
	assert.Contains(t, out, "b.py:1 reference (call)")
	assert.Contains(t, out, "Impacted files (2): a.py, b.py")
}

func TestAskCommand(t *testing.T) {
	repo := twoFileRepo(t)

	out, err := run(t, "ask", repo, "how", "is", "add", "used?", "--level", "beginner", "--top-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Retrieved 1 chunk(s)")
	assert.Contains(t, out, "so a beginner can understand")
	assert.Contains(t, out, "how is add used?")

	out, err = run(t, "ask", repo, "anything", "--top-k", "0", "--prompt-only")
	require.NoError(t, err)
	assert.Contains(t, out, "Context:\n\n\nQuestion:\nanything")
	assert.NotContains(t, out, "Retrieved")

	_, err = run(t, "ask", repo, "q", "--level", "guru")
	assert.ErrorContains(t, err, "unknown level")

	_, err = run(t, "ask", repo)
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "ci-bot", "--auth-jwt-secret", "s3cret")
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	a, err := auth.New(auth.Config{JwtSecret: []byte("s3cret"), Issuer: "codenav"})
	require.NoError(t, err)
	p, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ci-bot", p.Subject)

	_, err = run(t, "token", "ci-bot")
	assert.ErrorContains(t, err, "auth-jwt-secret")
}

func TestRenderImpact_NoFindings(t *testing.T) {
	var buf bytes.Buffer
	renderImpact(&buf, models.ImpactReport{Symbol: "nope", Explanation: "No uses or definitions of 'nope' were found."})
	assert.Contains(t, buf.String(), "Impact of nope")
	assert.Contains(t, buf.String(), "No uses or definitions of 'nope' were found.")
	assert.NotContains(t, buf.String(), "Impacted files")
}

func TestRenderAnswer(t *testing.T) {
	var buf bytes.Buffer
	renderAnswer(&buf, models.Answer{
		Results: []models.RetrievalResult{{
			Score: 1,
			Chunk: models.Chunk{Path: "a.py", StartLine: 1, EndLine: 2, Symbol: "add"},
		}},
		Context: "// File: a.py (lines 1-2)\ndef add(a, b):",
		Prompt:  "the prompt\n",
	})
	out := buf.String()
	assert.Contains(t, out, "1. a.py:1-2 add score 1.000")
	assert.Contains(t, out, "def add(a, b):")
	assert.True(t, strings.HasSuffix(out, "Prompt\nthe prompt\n"), out)
}
