// Package mcptools exposes the navigator as Model Context Protocol tools.
package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/seanblong/codenav/pkg/models"
)

const (
	ToolIngest = "ingest_repository"
	ToolQuery  = "query_codebase"
	ToolImpact = "impact_analysis"
	ToolStatus = "index_status"
)

type Navigator interface {
	IngestRef(ctx context.Context, repo, ref string) (models.IngestResult, error)
	Query(ctx context.Context, question string, level models.Level, topK int) (models.Answer, error)
	Impact(name string) models.ImpactReport
	Status() models.Status
}

type Options struct {
	Version     string
	DefaultTopK int
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(nav Navigator, opts Options) *mcpserver.MCPServer {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := mcpserver.NewMCPServer("codenav", opts.Version, mcpserver.WithToolCapabilities(false))
	s.AddTool(ingestTool(), makeIngestHandler(nav))
	s.AddTool(queryTool(opts.DefaultTopK), makeQueryHandler(nav, opts.DefaultTopK))
	s.AddTool(impactTool(), makeImpactHandler(nav))
	s.AddTool(statusTool(), makeStatusHandler(nav))
	return s
}

// ServeStdio blocks serving s over stdin/stdout.
func ServeStdio(s *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(s)
}

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func ingestTool() mcp.Tool {
	return mcp.NewTool(ToolIngest,
		mcp.WithDescription("Clone or open a repository, chunk and embed its Python, Java and JavaScript files, and make it the repository every other tool answers from. Replaces any previously ingested repository."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(false),
			DestructiveHint: mcp.ToBoolPtr(true),
			IdempotentHint:  mcp.ToBoolPtr(true),
			OpenWorldHint:   mcp.ToBoolPtr(true),
		}),
		mcp.WithString("repo_url",
			mcp.Required(),
			mcp.Description("Git URL or local directory of the repository"),
		),
		mcp.WithString("ref",
			mcp.Description("Branch or tag to clone (default: the remote's default branch)"),
		),
	)
}

func queryTool(defaultTopK int) mcp.Tool {
	return mcp.NewTool(ToolQuery,
		mcp.WithDescription("Retrieve the code chunks most relevant to a question and return an explanation prompt tailored to the audience level, plus the compressed code it was built from."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural language question about the codebase"),
		),
		mcp.WithString("level",
			mcp.Description("Audience of the explanation (default developer)"),
			mcp.Enum(string(models.LevelBeginner), string(models.LevelDeveloper), string(models.LevelArchitect)),
		),
		mcp.WithNumber("top_k",
			mcp.Description(fmt.Sprintf("Number of chunks to retrieve (default %d)", defaultTopK)),
			mcp.Min(0),
		),
	)
}

func impactTool() mcp.Tool {
	return mcp.NewTool(ToolImpact,
		mcp.WithDescription("List where a function, class or variable is defined and referenced in the ingested repository, and which files a change to it could break."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Symbol name to look up (whole-token match)"),
		),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool(ToolStatus,
		mcp.WithDescription("Report which repository is ingested, when, and how many files and chunks it has."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func makeIngestHandler(nav Navigator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repo := strings.TrimSpace(req.GetString("repo_url", ""))
		if repo == "" {
			return mcp.NewToolResultError("repo_url is required"), nil
		}
		res, err := nav.IngestRef(ctx, repo, req.GetString("ref", ""))
		if err != nil {
			log.Warn().Err(err).Str("repository", repo).Msg("mcp ingest failed")
			return toolError("ingest failed", err), nil
		}
		text := fmt.Sprintf("Ingested %s: %d files, %d chunks (%s backend, epoch %s).",
			res.Repository, res.IngestedFiles, res.Chunks, res.Backend, res.Epoch)
		return mcp.NewToolResultStructured(res, text), nil
	}
}

func makeQueryHandler(nav Navigator, defaultTopK int) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question := strings.TrimSpace(req.GetString("question", ""))
		if question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}
		level, ok := models.ParseLevel(req.GetString("level", ""))
		if !ok {
			return mcp.NewToolResultError("level must be one of beginner, developer, architect"), nil
		}
		topK := req.GetInt("top_k", defaultTopK)
		if topK < 0 {
			return mcp.NewToolResultError("top_k must not be negative"), nil
		}

		answer, err := nav.Query(ctx, question, level, topK)
		if err != nil {
			return toolError("query failed", err), nil
		}
		return mcp.NewToolResultStructured(answer, formatAnswer(answer)), nil
	}
}

func makeImpactHandler(nav Navigator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := strings.TrimSpace(req.GetString("name", ""))
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		report := nav.Impact(name)
		return mcp.NewToolResultStructured(report, formatImpact(report)), nil
	}
}

func makeStatusHandler(nav Navigator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := nav.Status()
		if !st.Ingested {
			return mcp.NewToolResultStructured(st, "No repository ingested yet. Call "+ToolIngest+" first."), nil
		}
		text := fmt.Sprintf("%s: %d files, %d chunks, %s backend, ingested %s (epoch %s).",
			st.Repository, st.Files, st.Chunks, st.Backend, st.CreatedAt.Format("2006-01-02 15:04:05"), st.Epoch)
		return mcp.NewToolResultStructured(st, text), nil
	}
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	if errs.KindOf(err) == errs.EmptyIndexError {
		return mcp.NewToolResultError("no repository ingested yet; call " + ToolIngest + " first")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func formatAnswer(a models.Answer) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Retrieved chunks (%d)\n\n", len(a.Results))
	for i, r := range a.Results {
		fmt.Fprintf(&sb, "%d. %s:%d-%d", i+1, r.Chunk.Path, r.Chunk.StartLine, r.Chunk.EndLine)
		if r.Chunk.Symbol != "" {
			fmt.Fprintf(&sb, " %s", r.Chunk.Symbol)
		}
		fmt.Fprintf(&sb, " (score %.3f)\n", r.Score)
	}
	sb.WriteString("\n## Prompt\n\n")
	sb.WriteString(a.Prompt)
	return sb.String()
}

func formatImpact(r models.ImpactReport) string {
	var sb strings.Builder
	sb.WriteString(r.Explanation)
	if len(r.Findings) == 0 {
		return sb.String()
	}
	sb.WriteString("\n\n")
	for _, f := range r.Findings {
		fmt.Fprintf(&sb, "- %s:%d %s", f.Path, f.Line, f.Kind)
		if f.Detail != "" {
			fmt.Fprintf(&sb, " (%s)", f.Detail)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
