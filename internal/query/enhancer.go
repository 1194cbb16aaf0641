// Package query expands user queries into search variants and scores
// retrieved chunks against the original query.
package query

import "strings"

// expansion appends extra search strings when any trigger appears in the
// lowercased query. Suffixes are appended to the original query text,
// phrases are used as they are.
type expansion struct {
	triggers []string
	suffixes []string
	phrases  []string
}

var expansions = []expansion{
	{
		triggers: []string{"useeffect"},
		suffixes: []string{" dependency array", " cleanup function"},
		phrases:  []string{"useEffect infinite loop"},
	},
	{
		triggers: []string{"usestate"},
		suffixes: []string{" state update", " functional update"},
		phrases:  []string{"useState asynchronous"},
	},
	{
		triggers: []string{"infinite", "loop"},
		phrases:  []string{"useEffect dependency array", "missing dependencies", "useCallback memoization"},
	},
	{
		triggers: []string{"render"},
		phrases:  []string{"React.memo optimization", "useMemo performance", "unnecessary re-render"},
	},
	{
		triggers: []string{"type", "interface", "generic"},
		suffixes: []string{" TypeScript", " type definition"},
	},
}

// Enhance returns the original query followed by every expansion whose
// trigger matches. Rules fire independently and the output is not
// deduplicated.
func Enhance(q string) []string {
	variants := []string{q}
	lower := strings.ToLower(q)

	for _, e := range expansions {
		if !containsAny(lower, e.triggers) {
			continue
		}
		for _, s := range e.suffixes {
			variants = append(variants, q+s)
		}
		variants = append(variants, e.phrases...)
	}
	return variants
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
