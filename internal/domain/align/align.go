// Package align locates a loosely-quoted excerpt inside the exact transcript
// token stream. Excerpts come from an LLM reproducing the transcript from
// memory, so exact substring search is not enough; the matcher runs an
// approximate subsequence search with a bounded token-level edit budget.
package align

import (
	"errors"
	"fmt"
	"sort"

	"github.com/clipforge/clipforge/internal/domain/transcript"
	"github.com/clipforge/clipforge/internal/types"
)

// ErrNoConfidentMatch means no window of the transcript scored above the
// acceptance threshold. Callers must handle the gap explicitly (drop the
// candidate or re-prompt) rather than get a silently misaligned span.
var ErrNoConfidentMatch = errors.New("align: no confident match")

// ErrEmptyExcerpt is returned when the excerpt normalizes to zero tokens.
var ErrEmptyExcerpt = errors.New("align: excerpt has no matchable tokens")

type Config struct {
	// MaxErrorFrac bounds tolerated substitutions/insertions/deletions as a
	// fraction of the query token count. Absorbs filler-word drops, homophone
	// fixes and light paraphrase noise.
	MaxErrorFrac float64
	// MinErrorBudget keeps very short excerpts from demanding an exact match.
	MinErrorBudget int
	// MinScore rejects windows that fit the edit budget only because the
	// budget floor is generous relative to a short query. Without it a one or
	// two token excerpt can "match" a window sharing no tokens at all.
	MinScore float64
	// MaxCandidates caps how many ranked spans MatchAll returns.
	MaxCandidates int
}

func DefaultConfig() Config {
	return Config{
		MaxErrorFrac:   0.15,
		MinErrorBudget: 2,
		MinScore:       0.5,
		MaxCandidates:  5,
	}
}

func (c Config) budget(queryLen int) int {
	b := int(float64(queryLen) * c.MaxErrorFrac)
	if b < c.MinErrorBudget {
		b = c.MinErrorBudget
	}
	return b
}

// Match returns the single best span for the excerpt, or ErrNoConfidentMatch.
func Match(idx *transcript.Index, excerpt string, cfg Config) (types.MatchedSpan, error) {
	spans, err := MatchAll(idx, excerpt, cfg)
	if err != nil {
		return types.MatchedSpan{}, err
	}
	return spans[0], nil
}

// MatchAll returns every non-overlapping span within the edit budget, ranked
// by score. Multiple spans happen when the excerpt text recurs nearly
// verbatim; the caller decides which recurrence(s) to keep.
func MatchAll(idx *transcript.Index, excerpt string, cfg Config) ([]types.MatchedSpan, error) {
	query := transcript.NormalizeText(excerpt)
	if len(query) == 0 {
		return nil, ErrEmptyExcerpt
	}
	toks := idx.Tokens()
	if len(toks) == 0 {
		return nil, fmt.Errorf("align: %w", transcript.ErrEmptyTranscript)
	}

	budget := cfg.budget(len(query))
	ends := searchEnds(query, toks, budget)
	if len(ends) == 0 {
		return nil, fmt.Errorf("%w: excerpt of %d tokens, budget %d edits", ErrNoConfidentMatch, len(query), budget)
	}

	cands := collectSpans(ends, len(query), budget, cfg.MinScore)
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: no window within length tolerance and score floor", ErrNoConfidentMatch)
	}

	spans := dedupeOverlaps(cands)
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].score != spans[j].score {
			return spans[i].score > spans[j].score
		}
		return spans[i].first < spans[j].first
	})
	if cfg.MaxCandidates > 0 && len(spans) > cfg.MaxCandidates {
		spans = spans[:cfg.MaxCandidates]
	}

	out := make([]types.MatchedSpan, 0, len(spans))
	for _, s := range spans {
		// The span must not start or end mid-word: timestamps come from the
		// first and last matched token's owning utterance boundaries.
		startUtt := idx.Utterance(toks[s.first].UttIndex)
		endUtt := idx.Utterance(toks[s.last].UttIndex)
		out = append(out, types.MatchedSpan{
			FirstToken: s.first,
			LastToken:  s.last,
			StartMS:    startUtt.StartMS,
			EndMS:      endUtt.EndMS,
			Score:      s.score,
		})
	}
	return out, nil
}

type matchEnd struct {
	end   int // text token index of the last matched token
	start int // text token index of the first matched token
	dist  int
}

type scoredSpan struct {
	first, last int
	score       float64
}

// searchEnds runs semi-global edit distance: the query must be consumed in
// full, but may start at any text position for free. O(len(query)*len(text))
// with two rolling rows; a parallel row carries window start positions so no
// traceback is needed.
func searchEnds(query []string, toks []transcript.Token, budget int) []matchEnd {
	n := len(toks)
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	prevStart := make([]int, n+1)
	curStart := make([]int, n+1)

	// Row 0: zero cost to begin a window at any text position.
	for j := 0; j <= n; j++ {
		prev[j] = 0
		prevStart[j] = j
	}

	for i := 1; i <= len(query); i++ {
		cur[0] = i
		curStart[0] = 0
		for j := 1; j <= n; j++ {
			subCost := 1
			if query[i-1] == toks[j-1].Norm {
				subCost = 0
			}

			best := prev[j-1] + subCost // match or substitute
			start := prevStart[j-1]
			if d := prev[j] + 1; d < best { // query token absent from text
				best = d
				start = prevStart[j]
			}
			if d := cur[j-1] + 1; d < best { // extra text token inside window
				best = d
				start = curStart[j-1]
			}
			cur[j] = best
			curStart[j] = start
		}
		prev, cur = cur, prev
		prevStart, curStart = curStart, prevStart
	}

	// prev now holds the final row. Keep local minima within budget so each
	// distinct occurrence yields one candidate instead of a smear of ends.
	var out []matchEnd
	for j := 1; j <= n; j++ {
		d := prev[j]
		if d > budget {
			continue
		}
		if j > 1 && prev[j-1] < d {
			continue
		}
		if j < n && prev[j+1] < d {
			continue
		}
		out = append(out, matchEnd{end: j - 1, start: prevStart[j], dist: d})
	}
	return out
}

// collectSpans converts candidate ends into scored token ranges, rejecting
// windows whose length falls outside the tolerance band around the query
// length (degenerate tiny matches, runaway long ones) and windows scoring
// below the acceptance floor.
func collectSpans(ends []matchEnd, queryLen, budget int, minScore float64) []scoredSpan {
	var out []scoredSpan
	for _, e := range ends {
		length := e.end - e.start + 1
		if length < queryLen-budget || length > queryLen+budget {
			continue
		}
		if e.start > e.end {
			continue
		}
		score := 1 - float64(e.dist)/float64(queryLen)
		if score < minScore {
			continue
		}
		out = append(out, scoredSpan{
			first: e.start,
			last:  e.end,
			score: score,
		})
	}
	return out
}

// dedupeOverlaps keeps the best-scoring span among any overlapping group.
func dedupeOverlaps(spans []scoredSpan) []scoredSpan {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].score != spans[j].score {
			return spans[i].score > spans[j].score
		}
		return spans[i].first < spans[j].first
	})
	var kept []scoredSpan
	for _, s := range spans {
		overlaps := false
		for _, k := range kept {
			if s.first <= k.last && s.last >= k.first {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, s)
		}
	}
	return kept
}
