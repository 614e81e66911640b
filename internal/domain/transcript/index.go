package transcript

import (
	"errors"
	"strings"
	"unicode"

	"github.com/clipforge/clipforge/internal/types"
)

// ErrEmptyTranscript is returned when the transcript has zero utterances.
var ErrEmptyTranscript = errors.New("transcript: no utterances")

// Token is a normalized word with a back-reference to its utterance and an
// estimated timestamp.
type Token struct {
	Norm     string
	Raw      string
	UttIndex int
	// AtMS is interpolated linearly across the utterance by token position
	// when the source gives no per-word timing. It is an approximation, good
	// enough for boundary selection but not a per-word guarantee.
	AtMS int64
}

// Index is the searchable token stream for one episode. It is rebuilt per
// pipeline run and never persisted.
type Index struct {
	utterances []types.Utterance
	tokens     []Token
}

// BuildIndex tokenizes every utterance, normalizing case and stripping
// punctuation so matching is robust to drift between the transcript and an
// LLM-reproduced quote. Pure transform, no side effects.
func BuildIndex(tr types.Transcript) (*Index, error) {
	if len(tr.Utterances) == 0 {
		return nil, ErrEmptyTranscript
	}
	if err := tr.Validate(); err != nil {
		return nil, err
	}

	idx := &Index{utterances: tr.Utterances}
	for ui, u := range tr.Utterances {
		words := strings.Fields(u.Text)
		kept := make([]Token, 0, len(words))
		for _, w := range words {
			norm := NormalizeToken(w)
			if norm == "" {
				continue
			}
			kept = append(kept, Token{Norm: norm, Raw: w, UttIndex: ui})
		}
		span := u.EndMS - u.StartMS
		for i := range kept {
			if len(kept) > 1 {
				kept[i].AtMS = u.StartMS + span*int64(i)/int64(len(kept)-1)
			} else {
				kept[i].AtMS = u.StartMS
			}
		}
		idx.tokens = append(idx.tokens, kept...)
	}
	return idx, nil
}

func (x *Index) Tokens() []Token { return x.tokens }

func (x *Index) Utterance(i int) types.Utterance { return x.utterances[i] }

func (x *Index) UtteranceCount() int { return len(x.utterances) }

// VerbatimRange reconstructs the original-form text spanned by the token range
// [first, last], joining across utterance boundaries. The output is what goes
// into the clip record's segment transcript, not the normalized form.
func (x *Index) VerbatimRange(first, last int) string {
	if first < 0 || last >= len(x.tokens) || first > last {
		return ""
	}
	var b strings.Builder
	for i := first; i <= last; i++ {
		if i > first {
			b.WriteByte(' ')
		}
		b.WriteString(x.tokens[i].Raw)
	}
	return b.String()
}

// UtteranceText returns the full original text of the utterances covered by
// the token range, so a segment transcript never starts or ends mid-sentence
// within an utterance the cut includes whole.
func (x *Index) UtteranceText(firstUtt, lastUtt int) string {
	if firstUtt < 0 || lastUtt >= len(x.utterances) || firstUtt > lastUtt {
		return ""
	}
	parts := make([]string, 0, lastUtt-firstUtt+1)
	for i := firstUtt; i <= lastUtt; i++ {
		parts = append(parts, strings.TrimSpace(x.utterances[i].Text))
	}
	return strings.Join(parts, " ")
}

// NormalizeToken lowercases a word and strips every non-alphanumeric rune.
// Returns "" for tokens that are punctuation only.
func NormalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeText tokenizes free text the same way index tokens are normalized,
// so excerpt queries and the index agree on word identity.
func NormalizeText(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if norm := NormalizeToken(f); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}
