package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitProvider implements port.VCSProvider using the git CLI.
type GitProvider struct{}

// NewGitProvider creates a new Git VCS provider.
func NewGitProvider() *GitProvider {
	return &GitProvider{}
}

// IsRemote reports whether src names a repository to clone rather than a
// local path.
func IsRemote(src string) bool {
	for _, prefix := range []string{"https://", "http://", "ssh://", "git://", "file://", "git@"} {
		if strings.HasPrefix(src, prefix) {
			return true
		}
	}
	return false
}

// Clone makes a shallow clone of url into dest.
func (g *GitProvider) Clone(ctx context.Context, url string, dest string) error {
	if _, err := g.run(ctx, "clone", "--depth", "1", "--quiet", url, dest); err != nil {
		return fmt.Errorf("git clone %s: %w", url, err)
	}
	return nil
}

// ListFiles returns all tracked file paths in the repository at rev.
func (g *GitProvider) ListFiles(ctx context.Context, repoPath string, rev string) ([]string, error) {
	if rev == "" {
		rev = "HEAD"
	}

	output, err := g.run(ctx, "-C", repoPath, "ls-tree", "-r", "--name-only", rev)
	if err != nil {
		return nil, fmt.Errorf("git ls-tree: %w", err)
	}

	var result []string
	for _, f := range strings.Split(string(output), "\n") {
		f = strings.TrimSpace(f)
		if f != "" {
			result = append(result, f)
		}
	}
	return result, nil
}

// ReadFile reads a file's content at a specific revision.
func (g *GitProvider) ReadFile(ctx context.Context, repoPath string, rev string, filePath string) ([]byte, error) {
	if rev == "" {
		return os.ReadFile(filepath.Join(repoPath, filepath.FromSlash(filePath)))
	}

	ref := fmt.Sprintf("%s:%s", rev, filePath)
	output, err := g.run(ctx, "-C", repoPath, "show", ref)
	if err != nil {
		return nil, fmt.Errorf("git show %s: %w", ref, err)
	}
	return output, nil
}

func (g *GitProvider) run(ctx context.Context, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return output, nil
}
