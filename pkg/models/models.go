package models

import "time"

// ChunkKind classifies how a chunk boundary was found.
type ChunkKind string

const (
	KindFunction       ChunkKind = "function"
	KindClass          ChunkKind = "class"
	KindModuleFallback ChunkKind = "module-fallback"
)

// SourceFile is one file of an ingested working tree.
type SourceFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Text     string `json:"-"`
}

type Chunk struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Language  string    `json:"language"`
	StartLine int       `json:"line_start"`
	EndLine   int       `json:"line_end"`
	Kind      ChunkKind `json:"kind"`
	Symbol    string    `json:"symbol,omitempty"`
	Text      string    `json:"content"`
}

// Lines returns the number of source lines the chunk spans.
func (c Chunk) Lines() int { return c.EndLine - c.StartLine + 1 }

type RetrievalResult struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Chunk   Chunk   `json:"chunk"`
}

// FindingKind is the classification of a symbol occurrence.
type FindingKind string

const (
	FindingDefinition FindingKind = "definition"
	FindingReference  FindingKind = "reference"
)

type ImpactFinding struct {
	Symbol string      `json:"symbol"`
	Path   string      `json:"path"`
	Line   int         `json:"line"`
	Kind   FindingKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
	Text   string      `json:"text,omitempty"`
}

type ImpactReport struct {
	Symbol        string          `json:"symbol"`
	Findings      []ImpactFinding `json:"findings"`
	ImpactedFiles []string        `json:"impacted_files"`
	Explanation   string          `json:"explanation"`
}

// Level selects the audience of the explanation prompt.
type Level string

const (
	LevelBeginner  Level = "beginner"
	LevelDeveloper Level = "developer"
	LevelArchitect Level = "architect"
)

// ParseLevel maps a user supplied level onto a known Level. The second
// return value is false for unknown values; empty input maps to developer.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelBeginner, LevelDeveloper, LevelArchitect:
		return Level(s), true
	case "":
		return LevelDeveloper, true
	default:
		return LevelDeveloper, false
	}
}

type Answer struct {
	Results []RetrievalResult `json:"results"`
	Prompt  string            `json:"prompt"`
	Context string            `json:"compressed_code"`
}

type IngestResult struct {
	Epoch         string        `json:"epoch"`
	Repository    string        `json:"repository"`
	IngestedFiles int           `json:"ingested_files"`
	Chunks        int           `json:"chunks"`
	Dim           int           `json:"dim"`
	Backend       string        `json:"backend"`
	Duration      time.Duration `json:"duration_ns"`
}

type Status struct {
	Ingested   bool      `json:"ingested"`
	Epoch      string    `json:"epoch,omitempty"`
	Repository string    `json:"repository,omitempty"`
	Files      int       `json:"files"`
	Chunks     int       `json:"chunks"`
	Backend    string    `json:"backend,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
