package search

import (
	"fmt"
	"os"
	"strings"

	"github.com/seanblong/codenav/pkg/models"
	"gopkg.in/yaml.v3"
)

// Templates maps an audience level to a prompt template. A template refers
// to the user's question as {question} and to the retrieved code as
// {context}.
type Templates map[models.Level]string

const beginnerTemplate = `You are a friendly assistant. Explain the code below in simple, non-technical terms so a beginner can understand.

Context:
{context}

Question:
{question}

Instructions:
- Use plain language; avoid jargon.
- Explain what the code does, why it might matter, and one short example of how it is used.
- Mention any obvious risks or things to watch out for in one short sentence.
- Keep the answer under ~150 words.
`

const developerTemplate = `You are a knowledgeable developer assistant. Provide a clear, technical explanation of the code below.

Context:
{context}

Question:
{question}

Instructions:
- Summarize the responsibilities of the code and important functions/classes.
- Point out where the key logic lives (refer to function/class names).
- List potential breakages or edge cases (short bullets).
- If relevant, suggest one concrete fix or improvement and link it to the affected symbol(s).
- Keep the answer focused and actionable (200-350 words).
`

const architectTemplate = `You are a senior architect. Provide a high-level, design-focused assessment of the code below.

Context:
{context}

Question:
{question}

Instructions:
- Describe how this code fits into a larger system and what modules/components it touches.
- Discuss design trade-offs, coupling, and maintainability concerns.
- Highlight risks, data flow implications, and migration/rollback strategies if this component changes.
- Recommend higher-level alternatives or refactoring approaches (brief).
- Keep the response concise and structured (250-400 words).
`

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() Templates {
	return Templates{
		models.LevelBeginner:  beginnerTemplate,
		models.LevelDeveloper: developerTemplate,
		models.LevelArchitect: architectTemplate,
	}
}

// Merge returns a copy of t with the non-empty entries of override applied.
func (t Templates) Merge(override Templates) Templates {
	out := Templates{}
	for k, v := range t {
		out[k] = v
	}
	for k, v := range override {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Render fills the template for level. Unknown levels use the developer
// template. Placeholders are substituted in a single pass, so a question
// or context that itself contains "{context}" is left alone.
func (t Templates) Render(level models.Level, question, context string) string {
	tmpl, ok := t[level]
	if !ok {
		tmpl = t[models.LevelDeveloper]
	}
	return strings.NewReplacer("{question}", question, "{context}", context).Replace(tmpl)
}

// LoadTemplates reads level templates from a YAML file of the form
//
//	beginner: |
//	  ...
//	architect: |
//	  ...
//
// Levels missing from the file keep their built-in template when merged.
func LoadTemplates(path string) (Templates, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	out := Templates{}
	for k, v := range raw {
		level, ok := models.ParseLevel(strings.ToLower(k))
		if !ok || k == "" {
			return nil, fmt.Errorf("templates %s: unknown level %q", path, k)
		}
		if !strings.Contains(v, "{context}") {
			return nil, fmt.Errorf("templates %s: %s template has no {context} placeholder", path, k)
		}
		out[level] = v
	}
	return out, nil
}
