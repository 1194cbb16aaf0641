package query

import (
	"sort"
	"strings"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
)

const (
	wordMatchWeight   = 1.0
	hookNameBonus     = 2.0
	infiniteLoopBonus = 1.5
	typeAffinityBonus = 1.0
)

// Relevance scores chunk against the original query with a keyword overlap
// heuristic. The result is never negative.
func Relevance(q string, chunk domain.Chunk) float64 {
	lowerQuery := strings.ToLower(q)
	text := strings.ToLower(chunk.Text)
	has := strings.Contains

	score := 0.0
	for _, word := range strings.Fields(lowerQuery) {
		if has(text, word) {
			score += wordMatchWeight
		}
	}

	if has(lowerQuery, "useeffect") && has(text, "useeffect") {
		score += hookNameBonus
	}
	if has(lowerQuery, "usestate") && has(text, "usestate") {
		score += hookNameBonus
	}
	if has(lowerQuery, "infinite") && (has(text, "dependency") || has(text, "useeffect")) {
		score += infiniteLoopBonus
	}

	switch chunk.Type {
	case domain.ChunkTypeReactHook:
		if containsAny(lowerQuery, []string{"hook", "useeffect", "usestate"}) {
			score += typeAffinityBonus
		}
	case domain.ChunkTypeReactComponent:
		if has(lowerQuery, "component") {
			score += typeAffinityBonus
		}
	case domain.ChunkTypeTypeScriptDefinition:
		if containsAny(lowerQuery, []string{"type", "interface"}) {
			score += typeAffinityBonus
		}
	}
	return score
}

// Rank sorts chunks in place by relevance descending, then distance
// ascending. Equal keys keep their input order.
func Rank(chunks []domain.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].RelevanceScore != chunks[j].RelevanceScore {
			return chunks[i].RelevanceScore > chunks[j].RelevanceScore
		}
		return chunks[i].Distance < chunks[j].Distance
	})
}
