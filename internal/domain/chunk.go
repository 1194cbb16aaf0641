package domain

import "time"

// Language is the source language of a chunk, derived from the file extension.
type Language string

// Language constants.
const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJSX        Language = "jsx"
)

// ChunkType classifies what a chunk of code mostly contains.
type ChunkType string

// ChunkType constants, in detection priority order.
const (
	ChunkTypeReactHook            ChunkType = "react_hook"
	ChunkTypeReactComponent       ChunkType = "react_component"
	ChunkTypeClassComponent       ChunkType = "class_component"
	ChunkTypeTypeScriptDefinition ChunkType = "typescript_definition"
	ChunkTypeModuleExport         ChunkType = "module_export"
	ChunkTypeImportStatement      ChunkType = "import_statement"
	ChunkTypeCodeBlock            ChunkType = "code_block"
)

// Chunk is a bounded, typed segment of a source file.
type Chunk struct {
	Text      string    `json:"text"       db:"text"`
	Filename  string    `json:"filename"   db:"filename"`
	StartLine int       `json:"start_line" db:"start_line"`
	EndLine   int       `json:"end_line"   db:"end_line"`
	Language  Language  `json:"language"   db:"language"`
	Type      ChunkType `json:"type"       db:"type"`
	Embedding []float32 `json:"embedding,omitempty" db:"vector"`
}

// HasEmbedding reports whether the chunk carries a vector.
func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// RetrievedChunk is a chunk returned by search, with its vector distance
// (lower is closer) and heuristic relevance score (higher is better).
type RetrievedChunk struct {
	Chunk
	Distance       float64 `json:"distance"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Key identifies a chunk across query variants.
func (r RetrievedChunk) Key() ChunkKey {
	return ChunkKey{Filename: r.Filename, StartLine: r.StartLine}
}

// ChunkKey is the dedup identity of a retrieved chunk.
type ChunkKey struct {
	Filename  string
	StartLine int
}

// Session groups every chunk of one uploaded codebase.
type Session struct {
	ID         string    `json:"session_id"  db:"id"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
}

// SessionStats summarises the chunks stored for a session.
type SessionStats struct {
	SessionID   string            `json:"session_id"`
	TotalChunks int               `json:"total_chunks"`
	FileTypes   map[ChunkType]int `json:"file_types"`
}

// UploadedFile is a file received from a client, content base64 encoded.
type UploadedFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ContextSummary describes a set of retrieved chunks.
type ContextSummary struct {
	TotalChunks      int      `json:"total_chunks"`
	Files            []string `json:"files"`
	Types            []string `json:"types"`
	AverageRelevance float64  `json:"average_relevance"`
}
