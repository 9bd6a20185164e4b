// Package search implements the fuzzy name index used for stop and area
// lookup. Candidates are generated from a trigram inverted index and scored
// in tiers: exact substring beats prefix beats trigram similarity.
package search

import (
	"sort"
	"strings"
	"unicode"
)

// Entry is one indexed entity.
type Entry struct {
	ID   string
	Name string
}

// Result is one search hit. Index refers into the slice the index was built
// from.
type Result struct {
	Index uint32
	Score float64
}

// Index is an immutable fuzzy name index.
type Index struct {
	entries    []Entry
	normalized []string
	tokens     [][]string
	trigrams   map[string][]uint32
}

const (
	scoreSubstring = 3.0
	scorePrefix    = 2.0
	minTrigramSim  = 0.3
	minScore       = 0.1
)

// Build indexes the given entries. The index keeps its own copy.
func Build(entries []Entry) *Index {
	ix := &Index{
		entries:    append([]Entry(nil), entries...),
		normalized: make([]string, len(entries)),
		tokens:     make([][]string, len(entries)),
		trigrams:   make(map[string][]uint32),
	}
	for i, e := range ix.entries {
		norm := normalize(e.Name)
		toks := tokenize(norm)
		ix.normalized[i] = norm
		ix.tokens[i] = toks
		seen := make(map[string]struct{})
		for _, tok := range toks {
			for _, tg := range trigrams(tok) {
				if _, dup := seen[tg]; dup {
					continue
				}
				seen[tg] = struct{}{}
				ix.trigrams[tg] = append(ix.trigrams[tg], uint32(i))
			}
		}
	}
	return ix
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Entry returns the indexed entry at i.
func (ix *Index) Entry(i uint32) Entry {
	return ix.entries[i]
}

// Search returns the top-k entries for the query, sorted by descending
// score. Ties break by shorter name, then by id. The result slice is a fresh
// allocation owned by the caller.
func (ix *Index) Search(q string, k int) []Result {
	if k <= 0 {
		return nil
	}
	norm := normalize(q)
	qTokens := tokenize(norm)
	if len(qTokens) == 0 {
		return nil
	}

	var results []Result
	for _, cand := range ix.candidates(qTokens) {
		score := ix.score(cand, norm, qTokens)
		if score > minScore {
			results = append(results, Result{Index: cand, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		an, bn := ix.entries[a.Index].Name, ix.entries[b.Index].Name
		if len(an) != len(bn) {
			return len(an) < len(bn)
		}
		return ix.entries[a.Index].ID < ix.entries[b.Index].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// candidates narrows the scan using the trigram index. A query with a token
// shorter than a trigram can prefix-match names whose grams it does not
// share, so those scan everything; the comparisons are cheap for inputs that
// short.
func (ix *Index) candidates(qTokens []string) []uint32 {
	short := false
	tgs := make([]string, 0, 8)
	for _, tok := range qTokens {
		if len([]rune(tok)) < 3 {
			short = true
		}
		tgs = append(tgs, trigrams(tok)...)
	}
	if short || len(tgs) == 0 {
		all := make([]uint32, len(ix.entries))
		for i := range all {
			all[i] = uint32(i)
		}
		return all
	}
	seen := make(map[uint32]struct{})
	var out []uint32
	for _, tg := range tgs {
		for _, ent := range ix.trigrams[tg] {
			if _, dup := seen[ent]; dup {
				continue
			}
			seen[ent] = struct{}{}
			out = append(out, ent)
		}
	}
	return out
}

func (ix *Index) score(ent uint32, normQuery string, qTokens []string) float64 {
	name := ix.normalized[ent]
	if name == "" {
		return 0
	}
	coverage := float64(len(normQuery)) / float64(len(name))
	if coverage > 1 {
		coverage = 1
	}
	if strings.Contains(name, normQuery) {
		return scoreSubstring + coverage
	}
	for _, tok := range ix.tokens[ent] {
		for _, qt := range qTokens {
			if strings.HasPrefix(tok, qt) {
				return scorePrefix + coverage
			}
		}
	}
	sim := trigramSimilarity(qTokens, ix.tokens[ent])
	if sim < minTrigramSim {
		return 0
	}
	return sim
}

// trigramSimilarity computes the Jaccard similarity over the trigram sets of
// both token lists.
func trigramSimilarity(a, b []string) float64 {
	as := trigramSet(a)
	bs := trigramSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for tg := range as {
		if _, ok := bs[tg]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func trigramSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokens {
		for _, tg := range trigrams(tok) {
			set[tg] = struct{}{}
		}
	}
	return set
}

// trigrams pads the token with boundary markers so short tokens still emit
// at least one gram.
func trigrams(tok string) []string {
	if tok == "" {
		return nil
	}
	padded := "\x02" + tok + "\x03"
	runes := []rune(padded)
	if len(runes) < 3 {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// tokenize splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
