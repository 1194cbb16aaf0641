package port

import "context"

// VCSProvider reads sources out of a version control system.
type VCSProvider interface {
	// Clone makes a shallow clone of the repository at url into dest.
	Clone(ctx context.Context, url string, dest string) error

	// ListFiles returns the tracked file paths of the repository at rev
	// (HEAD when rev is empty).
	ListFiles(ctx context.Context, repoPath string, rev string) ([]string, error)

	// ReadFile reads a file's content at rev, or from the working tree when
	// rev is empty.
	ReadFile(ctx context.Context, repoPath string, rev string, filePath string) ([]byte, error)
}
