package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/go-code-retriever/internal/adapter/vcs"
	"github.com/arturoeanton/go-code-retriever/internal/bootstrap"
	"github.com/arturoeanton/go-code-retriever/internal/chunker"
	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
	"github.com/arturoeanton/go-code-retriever/internal/service"
	"github.com/arturoeanton/go-code-retriever/pkg/config"
)

const usage = `usage: ragctl <command> [flags]

commands:
  ingest   [-session id] [-rev r] <dir|url>
                                      index the .js/.jsx/.ts/.tsx files of a directory,
                                      a git revision of it, or a cloned repository
  query    -session id [-n max] <q>  retrieve the chunks most relevant to q
  stats    -session id                count a session's chunks by type
  sessions                            list indexed sessions
  cleanup  [-keep n]                  keep the n newest sessions, delete the rest
  reset    -yes                       delete every session

With the default bolt backend the store file is locked while open, so ragctl
cannot share BOLT_PATH with a running server. Stop the server first, point
BOLT_PATH elsewhere, or use a shared backend (sqlite, postgres, qdrant).
`

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	red       = color.New(color.FgRed, color.Bold).SprintFunc()
)

var errUsage = errors.New("invalid usage")

// skipDirs are never descended into during ingest.
var skipDirs = map[string]bool{"node_modules": true, ".git": true, "dist": true, "build": true}

func main() {
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ingest":
		return ingest(ctx, app, rest, out)
	case "query":
		return query(ctx, app, rest, out)
	case "stats":
		return stats(ctx, app, rest, out)
	case "sessions":
		return sessions(ctx, app, out)
	case "cleanup":
		return cleanup(ctx, app, rest, out)
	case "reset":
		return reset(ctx, app, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func ingest(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fset := flag.NewFlagSet("ingest", flag.ContinueOnError)
	sessionID := fset.String("session", "", "append to an existing session")
	rev := fset.String("rev", "", "index a git revision instead of the working tree")
	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("%w: ingest takes exactly one directory or repository URL", errUsage)
	}
	src := fset.Arg(0)

	var (
		files []domain.UploadedFile
		err   error
	)
	switch {
	case vcs.IsRemote(src):
		var tmp string
		if tmp, err = os.MkdirTemp("", "ragctl-clone-"); err != nil {
			return err
		}
		defer os.RemoveAll(tmp)

		fmt.Fprintf(out, "📥 Cloning %s\n", src)
		git := vcs.NewGitProvider()
		if err = git.Clone(ctx, src, tmp); err != nil {
			return err
		}
		files, err = collectFromVCS(ctx, git, tmp, *rev)
	case *rev != "":
		files, err = collectFromVCS(ctx, vcs.NewGitProvider(), src, *rev)
	default:
		files, err = collectSources(src)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "📚 Found %d source files\n", len(files))

	res, err := app.RAG.IndexFiles(ctx, files, *sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %d chunks from %d files\n", boldGreen("✅ Indexed"), res.Chunks, res.Files)
	fmt.Fprintf(out, "session: %s\n", boldCyan(res.SessionID))
	for _, id := range res.Evicted {
		fmt.Fprintf(out, "%s %s\n", yellow("evicted"), id)
	}
	if res.SessionEvicted {
		fmt.Fprintf(out, "%s session %s was among the oldest and has been evicted by KEEP_RECENT_SESSIONS\n",
			red("warning:"), res.SessionID)
	}
	return nil
}

// collectFromVCS reads the tracked source files of a repository at rev.
func collectFromVCS(ctx context.Context, vcsProvider port.VCSProvider, repoPath, rev string) ([]domain.UploadedFile, error) {
	paths, err := vcsProvider.ListFiles(ctx, repoPath, rev)
	if err != nil {
		return nil, err
	}

	var files []domain.UploadedFile
	for _, p := range paths {
		if !chunker.IsSourceFile(p) || inSkippedDir(p) {
			continue
		}
		data, err := vcsProvider.ReadFile(ctx, repoPath, rev, p)
		if err != nil {
			return nil, err
		}
		files = append(files, domain.UploadedFile{
			Name:    p,
			Content: base64.StdEncoding.EncodeToString(data),
		})
	}
	return files, nil
}

func inSkippedDir(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}

// collectSources walks root and encodes every source file as an upload.
// Names are slash-separated paths relative to root.
func collectSources(root string) ([]domain.UploadedFile, error) {
	var files []domain.UploadedFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !chunker.IsSourceFile(d.Name()) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.UploadedFile{
			Name:    filepath.ToSlash(rel),
			Content: base64.StdEncoding.EncodeToString(data),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	slog.Debug("collected sources", "root", root, "files", len(files))
	return files, nil
}

func query(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fset := flag.NewFlagSet("query", flag.ContinueOnError)
	sessionID := fset.String("session", "", "session to search")
	maxChunks := fset.Int("n", 0, "maximum chunks to return")
	raw := fset.Bool("context", false, "print the formatted context block only")
	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	q := strings.Join(fset.Args(), " ")
	if *sessionID == "" || q == "" {
		return fmt.Errorf("%w: query needs -session and a question", errUsage)
	}

	chunks, err := app.RAG.RetrieveRelevantChunks(ctx, q, *sessionID, *maxChunks)
	if err != nil {
		return err
	}
	if *raw {
		fmt.Fprintln(out, app.RAG.FormatContextForAI(chunks, q))
		return nil
	}
	if len(chunks) == 0 {
		fmt.Fprintln(out, yellow(service.NoRelevantCode))
		return nil
	}

	for i, c := range chunks {
		fmt.Fprintf(out, "%s %s (lines %d-%d) %s\n",
			boldCyan(fmt.Sprintf("%d.", i+1)), c.Filename, c.StartLine, c.EndLine, yellow(c.Type))
		fmt.Fprintf(out, "   relevance %.2f  distance %.4f\n", c.RelevanceScore, c.Distance)
	}
	summary := app.RAG.ContextSummary(chunks)
	fmt.Fprintf(out, "%s %d chunks from %d files, average relevance %.2f\n",
		boldGreen("summary:"), summary.TotalChunks, len(summary.Files), summary.AverageRelevance)
	return nil
}

func stats(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fset := flag.NewFlagSet("stats", flag.ContinueOnError)
	sessionID := fset.String("session", "", "session to describe")
	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *sessionID == "" {
		return fmt.Errorf("%w: stats needs -session", errUsage)
	}

	st, err := app.RAG.GetSessionStats(ctx, *sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s: %s chunks\n", boldCyan(st.SessionID), boldGreen(st.TotalChunks))

	types := make([]string, 0, len(st.FileTypes))
	for t := range st.FileTypes {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "  %-22s %d\n", t, st.FileTypes[domain.ChunkType(t)])
	}
	return nil
}

func sessions(ctx context.Context, app *bootstrap.App, out io.Writer) error {
	list, err := app.RAG.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, yellow("no sessions"))
		return nil
	}
	for _, s := range list {
		fmt.Fprintf(out, "%s  %s  %d chunks\n", boldCyan(s.ID), s.CreatedAt.Format("2006-01-02 15:04:05"), s.ChunkCount)
	}
	return nil
}

func cleanup(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fset := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	keep := fset.Int("keep", 10, "number of recent sessions to keep")
	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	removed, err := app.RAG.CleanupOldSessions(ctx, *keep)
	if err != nil {
		return err
	}
	for _, id := range removed {
		fmt.Fprintf(out, "%s %s\n", yellow("removed"), id)
	}
	fmt.Fprintf(out, "%s %d sessions removed\n", boldGreen("✅"), len(removed))
	return nil
}

func reset(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fset := flag.NewFlagSet("reset", flag.ContinueOnError)
	yes := fset.Bool("yes", false, "confirm deleting every session")
	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if !*yes {
		return fmt.Errorf("%w: reset deletes every session, pass -yes to confirm", errUsage)
	}

	if err := app.RAG.ResetDatabase(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, boldGreen("✅ store reset"))
	return nil
}
