package chunker

import (
	"path/filepath"
	"strings"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
)

// sourceExtensions lists the files the ingest path accepts.
var sourceExtensions = []string{".js", ".jsx", ".ts", ".tsx"}

// IsSourceFile reports whether filename has a recognised source extension.
func IsSourceFile(filename string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// DetectLanguage infers the chunk language from the file extension.
func DetectLanguage(filename string) domain.Language {
	switch filepath.Ext(filename) {
	case ".tsx", ".jsx":
		return domain.LanguageJSX
	case ".ts":
		return domain.LanguageTypeScript
	default:
		return domain.LanguageJavaScript
	}
}

// DetectType classifies a chunk by case-insensitive substring rules, checked
// in priority order. The first rule that matches wins.
func DetectType(code string) domain.ChunkType {
	lower := strings.ToLower(code)
	has := strings.Contains

	switch {
	case has(lower, "useeffect") || has(lower, "usestate"):
		return domain.ChunkTypeReactHook
	case has(lower, "function") && has(lower, "component"):
		return domain.ChunkTypeReactComponent
	case has(lower, "class") && has(lower, "extends"):
		return domain.ChunkTypeClassComponent
	case has(lower, "interface") || has(lower, "type"):
		return domain.ChunkTypeTypeScriptDefinition
	case has(lower, "export"):
		return domain.ChunkTypeModuleExport
	case has(lower, "import"):
		return domain.ChunkTypeImportStatement
	default:
		return domain.ChunkTypeCodeBlock
	}
}
