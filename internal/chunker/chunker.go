// Package chunker splits JavaScript/TypeScript source into size-bounded,
// typed chunks for embedding.
package chunker

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
)

// DefaultMaxChunkSize is the soft cap, in characters, of a chunk.
const DefaultMaxChunkSize = 500

// Options tune chunking.
type Options struct {
	// MaxChunkSize is the soft character cap. The check runs before a line
	// is appended, so a chunk may end up one line longer than the cap.
	MaxChunkSize int

	// SplitOnBlocks also flushes a non-empty buffer when a line opens a new
	// logical block (function, class, export, interface, type alias).
	SplitOnBlocks bool
}

// blockStart holds the signatures of a line that opens a logical block.
// They are matched against the start of the trimmed line.
var blockStart = []*regexp.Regexp{
	regexp.MustCompile(`^function\s+\w+`),
	regexp.MustCompile(`^const\s+\w+\s*=\s*\(`),
	regexp.MustCompile(`^class\s+\w+`),
	regexp.MustCompile(`^export\s+`),
	regexp.MustCompile(`^interface\s+\w+`),
	regexp.MustCompile(`^type\s+\w+`),
}

// IsBlockStart reports whether line opens a function, arrow function
// assignment, class, export, interface or type alias.
func IsBlockStart(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, re := range blockStart {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// Chunk splits code into chunks using the default options and maxChunkSize.
func Chunk(code, filename string, maxChunkSize int) []domain.Chunk {
	return ChunkWithOptions(code, filename, Options{MaxChunkSize: maxChunkSize})
}

// ChunkWithOptions scans code line by line, accumulating a buffer until the
// next line would push it past the size cap, then emits the buffer as one
// chunk. Whitespace-only buffers are dropped. Line numbers are 1-based.
func ChunkWithOptions(code, filename string, opts Options) []domain.Chunk {
	maxSize := opts.MaxChunkSize
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	lang := DetectLanguage(filename)
	lines := strings.Split(code, "\n")

	var chunks []domain.Chunk
	var buf []string
	size := 0

	flush := func(endLine int) {
		text := strings.Join(buf, "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				Text:      text,
				Filename:  filename,
				StartLine: endLine - len(buf) + 1,
				EndLine:   endLine,
				Language:  lang,
				Type:      DetectType(text),
			})
		}
		buf = buf[:0]
		size = 0
	}

	for i, line := range lines {
		lineSize := utf8.RuneCountInString(line)
		if len(buf) > 0 {
			overflow := size+lineSize > maxSize
			if overflow || (opts.SplitOnBlocks && IsBlockStart(line)) {
				// i is 0-based, so the previous line is line number i.
				flush(i)
			}
		}
		buf = append(buf, line)
		size += lineSize
	}
	if len(buf) > 0 {
		flush(len(lines))
	}

	slog.Debug("chunked file", "filename", filename, "chunks", len(chunks))
	return chunks
}
