package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashingDimension is used when NewHashingProvider gets a non-positive size.
const DefaultHashingDimension = 384

// HashingProvider is an offline embedding provider. It tokenizes text into
// identifiers and their camelCase/snake_case parts and folds them into a
// fixed-size vector with signed feature hashing. Output is L2-normalized.
type HashingProvider struct {
	dim int
}

// NewHashingProvider returns a hashing provider producing vectors of size dim.
func NewHashingProvider(dim int) *HashingProvider {
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &HashingProvider{dim: dim}
}

// ModelName returns a synthetic model identifier.
func (h *HashingProvider) ModelName() string {
	return "hashing"
}

// Embed hashes text into a vector.
func (h *HashingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

// EmbedBatch hashes every text. It never fails.
func (h *HashingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashingProvider) vector(text string) []float32 {
	v := make([]float64, h.dim)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// tokenize returns lowercased identifier tokens plus their sub-words.
// "useEffectCleanup" yields useeffectcleanup, use, effect, cleanup.
func tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$'
	})

	var tokens []string
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
		parts := splitIdentifier(w)
		if len(parts) > 1 {
			tokens = append(tokens, parts...)
		}
	}
	return tokens
}

func splitIdentifier(w string) []string {
	var parts []string
	var cur []rune
	emit := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(w)
	for i, r := range runes {
		switch {
		case r == '_' || r == '$':
			emit()
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			emit()
		}
		cur = append(cur, r)
	}
	emit()
	return parts
}
