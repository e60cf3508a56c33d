package main

import (
	"fmt"
	"strings"

	"github.com/seanblong/codenav/internal/auth"
	"github.com/seanblong/codenav/internal/mcptools"
	"github.com/seanblong/codenav/internal/navigator"
	"github.com/seanblong/codenav/pkg/models"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		level  string
		prompt bool
	)
	cmd := &cobra.Command{
		Use:   "ask <repo> <question>",
		Short: "Ingest a repository and build an explanation prompt for a question",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, ok := models.ParseLevel(level)
			if !ok {
				return fmt.Errorf("unknown level %q (beginner, developer, architect)", level)
			}
			if cfg.TopK < 0 {
				return fmt.Errorf("--top-k must not be negative")
			}

			nav, err := openRepo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer nav.Close()

			answer, err := nav.Query(cmd.Context(), strings.Join(args[1:], " "), lvl, cfg.TopK)
			if err != nil {
				return err
			}
			if prompt {
				fmt.Fprint(cmd.OutOrStdout(), answer.Prompt)
				return nil
			}
			renderAnswer(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", string(models.LevelDeveloper), "Audience: beginner, developer or architect")
	cmd.Flags().BoolVar(&prompt, "prompt-only", false, "Print only the filled prompt, unstyled")
	return cmd
}

func newImpactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "impact <repo> <name>",
		Short: "Show where a symbol is defined and referenced",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nav, err := openRepo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer nav.Close()

			renderImpact(cmd.OutOrStdout(), nav.Impact(args[1]))
			return nil
		},
	}
}

func newMCPCmd() *cobra.Command {
	var repo string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the codenav tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			nav, err := navigator.FromConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer nav.Close()
			if repo != "" {
				if _, err := nav.Ingest(cmd.Context(), repo); err != nil {
					return err
				}
			}

			s := mcptools.NewServer(nav, mcptools.Options{Version: version, DefaultTopK: cfg.TopK})
			return mcptools.ServeStdio(s)
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "Repository to ingest before serving")
	return cmd
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the API's /ingest endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Auth.JwtSecret == "" {
				return fmt.Errorf("--auth-jwt-secret (or CODENAV_AUTH_JWT_SECRET) is required")
			}
			a, err := auth.New(auth.Config{
				JwtSecret: []byte(cfg.Auth.JwtSecret),
				Issuer:    cfg.Auth.Issuer,
				TTL:       cfg.Auth.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, err := a.GenerateToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
