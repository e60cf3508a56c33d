package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// contentEmbedder is the part of genai.Models the client uses.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type VertexAIClient struct {
	config *ClientConfig
	models contentEmbedder
}

// applyVertexDefaults fills in the model, dimension and location defaults.
func applyVertexDefaults(config *ClientConfig) {
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}
}

// genaiConfig maps the provider settings onto a Vertex AI backed genai
// client. Blank settings are left for genai to resolve from the environment.
func genaiConfig(config *ClientConfig) *genai.ClientConfig {
	cc := &genai.ClientConfig{Backend: genai.BackendVertexAI}
	for dst, v := range map[*string]string{
		&cc.APIKey:   config.APIKey,
		&cc.Project:  config.ProjectID,
		&cc.Location: config.Location,
	} {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	return cc
}

// NewVertexAIClient creates a new embedding client for Vertex AI.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	applyVertexDefaults(config)

	client, err := genai.NewClient(ctx, genaiConfig(config))
	if err != nil {
		return nil, fmt.Errorf("vertexai client: %w", err)
	}
	return &VertexAIClient{config: config, models: client.Models}, nil
}

// Embed sends all texts in one EmbedContent call.
func (c *VertexAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	res, err := c.models.EmbedContent(ctx, c.config.EmbedModel, contents, &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"})
	if err != nil {
		return nil, fmt.Errorf("vertexai embed: %w", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		got := 0
		if res != nil {
			got = len(res.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), got)
	}

	out := make([][]float32, len(texts))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("embedding %d missing", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

func (c *VertexAIClient) Dim() int {
	return c.config.Dim
}

func (c *VertexAIClient) Model() string {
	return c.config.EmbedModel
}
