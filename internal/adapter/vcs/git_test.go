package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func gitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	git := func(args ...string) string {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
		return strings.TrimSpace(string(out))
	}

	git("init", "--quiet")
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "app.js"), []byte("let v = 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	git("add", ".")
	git("commit", "--quiet", "-m", "first")

	if err := os.WriteFile(filepath.Join(dir, "src", "app.js"), []byte("let v = 2;"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestListAndReadAtRevision(t *testing.T) {
	dir := gitRepo(t)
	g := NewGitProvider()
	ctx := context.Background()

	files, err := g.ListFiles(ctx, dir, "")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "src/app.js" {
		t.Fatalf("unexpected files: %v", files)
	}

	committed, err := g.ReadFile(ctx, dir, "HEAD", "src/app.js")
	if err != nil {
		t.Fatalf("ReadFile HEAD: %v", err)
	}
	if string(committed) != "let v = 1;" {
		t.Fatalf("committed content = %q", committed)
	}

	working, err := g.ReadFile(ctx, dir, "", "src/app.js")
	if err != nil {
		t.Fatalf("ReadFile worktree: %v", err)
	}
	if string(working) != "let v = 2;" {
		t.Fatalf("working tree content = %q", working)
	}
}

func TestCloneLocalRepository(t *testing.T) {
	src := gitRepo(t)
	dest := filepath.Join(t.TempDir(), "clone")

	g := NewGitProvider()
	if err := g.Clone(context.Background(), "file://"+src, dest); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "src", "app.js"))
	if err != nil || string(data) != "let v = 1;" {
		t.Fatalf("clone content = %q, %v", data, err)
	}
}

func TestReadFileMissingRevision(t *testing.T) {
	dir := gitRepo(t)
	if _, err := NewGitProvider().ReadFile(context.Background(), dir, "deadbeef", "src/app.js"); err == nil {
		t.Fatal("expected error for unknown revision")
	}
}

func TestIsRemote(t *testing.T) {
	cases := map[string]bool{
		"https://github.com/a/b.git": true,
		"git@github.com:a/b.git":     true,
		"ssh://host/repo":            true,
		"file:///srv/repo":          true,
		"./src":                      false,
		"/abs/path":                  false,
	}
	for src, want := range cases {
		if got := IsRemote(src); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", src, got, want)
		}
	}
}
