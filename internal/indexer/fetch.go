package indexer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/errs"
)

// Fetcher makes a repository's working tree available on disk. cleanup
// removes anything Fetch created and is never nil on success.
type Fetcher interface {
	Fetch(ctx context.Context, repo, ref string) (dir string, cleanup func(), err error)
}

// GitFetcher uses an existing local directory in place and shallow-clones
// anything else into a temporary directory.
type GitFetcher struct {
	// Token authenticates https clones from GitHub.
	Token string
}

func (g *GitFetcher) Fetch(ctx context.Context, repo, ref string) (string, func(), error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return "", nil, errs.Errorf(errs.CloneError, "fetch", "repository is required")
	}
	if fi, err := os.Stat(repo); err == nil && fi.IsDir() {
		return repo, func() {}, nil
	}

	dir, err := cloneToTemp(ctx, repo, ref, g.Token)
	if err != nil {
		return "", nil, errs.E(errs.CloneError, "clone "+repo, err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove temp directory")
		}
	}, nil
}

func cloneToTemp(ctx context.Context, repoURL, ref, token string) (string, error) {
	dir, err := os.MkdirTemp("", "codenav-*")
	if err != nil {
		return "", err
	}
	url := repoURL
	if token != "" && strings.HasPrefix(url, "https://") {
		url = "https://" + token + ":x-oauth-basic@" + strings.TrimPrefix(url, "https://")
	}

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, dir)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", dir).Msg("failed to remove temp directory")
		}
		msg := strings.TrimSpace(string(out))
		if token != "" {
			msg = strings.ReplaceAll(msg, token, "***")
		}
		return "", fmt.Errorf("git clone: %w: %s", err, msg)
	}
	return dir, nil
}
