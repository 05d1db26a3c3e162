// Package textutil holds the small text heuristics shared by the
// coordinator's similarity clustering and the synthesis quality scoring.
package textutil

import "strings"

// Tokens lowercases s and splits it into word tokens, dropping
// punctuation-only fragments.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" && f != "'" {
			out = append(out, f)
		}
	}
	return out
}

// TokenSet returns the unique tokens of s.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// Jaccard computes |a∩b| / |a∪b| over two token sets. Two empty sets are
// fully similar.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Novelty is the fraction of tokens in s absent from seen.
func Novelty(s string, seen map[string]struct{}) float64 {
	toks := TokenSet(s)
	if len(toks) == 0 {
		return 0
	}
	fresh := 0
	for t := range toks {
		if _, ok := seen[t]; !ok {
			fresh++
		}
	}
	return float64(fresh) / float64(len(toks))
}

// Truncate bounds s to max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
