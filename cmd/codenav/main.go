package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/config"
	"github.com/seanblong/codenav/internal/navigator"
	"github.com/spf13/cobra"
)

var version = "dev"

// cfg is loaded once per invocation by the root command's pre-run hook.
var cfg config.Specification

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codenav",
		Short:         "Explain and analyse Python, Java and JavaScript repositories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load("", cmd.Flags())
			if err != nil {
				return err
			}
			return setupLogging(cfg.LogLevel)
		},
	}
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(newAskCmd(), newImpactCmd(), newMCPCmd(), newTokenCmd())
	return root
}

func setupLogging(levelName string) error {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", levelName, err)
	}
	zerolog.SetGlobalLevel(level)
	// stdout belongs to command output and, for mcp, to the protocol
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
	return nil
}

// openRepo builds a navigator from cfg and ingests repo into it.
func openRepo(ctx context.Context, repo string) (*navigator.Navigator, error) {
	nav, err := navigator.FromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := nav.Ingest(ctx, repo)
	if err != nil {
		_ = nav.Close()
		return nil, err
	}
	log.Info().Str("epoch", res.Epoch).Int("files", res.IngestedFiles).Int("chunks", res.Chunks).Dur("duration", res.Duration).Msg("repository ingested")
	return nav, nil
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
