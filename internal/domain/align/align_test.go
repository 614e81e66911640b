package align

import (
	"errors"
	"testing"

	"github.com/clipforge/clipforge/internal/domain/transcript"
	"github.com/clipforge/clipforge/internal/types"
)

func buildIndex(t *testing.T, utts []types.Utterance) *transcript.Index {
	t.Helper()
	idx, err := transcript.BuildIndex(types.Transcript{Episode: "ep", Utterances: utts})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return idx
}

func TestMatch_ExactSubstring(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, []types.Utterance{
		{Speaker: "A", Text: "We should talk about the economy first.", StartMS: 0, EndMS: 4000},
		{Speaker: "B", Text: "The stock market has been flat for a decade despite growth.", StartMS: 4000, EndMS: 9000},
		{Speaker: "A", Text: "That puzzle kept me up at night.", StartMS: 9000, EndMS: 12000},
	})

	span, err := Match(idx, "The stock market has been flat for a decade despite growth.", DefaultConfig())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if span.Score != 1 {
		t.Fatalf("expected perfect score for exact substring, got %v", span.Score)
	}
	if span.StartMS != 4000 || span.EndMS != 9000 {
		t.Fatalf("expected span [4000,9000], got [%d,%d]", span.StartMS, span.EndMS)
	}
	toks := idx.Tokens()
	if toks[span.FirstToken].Norm != "the" || toks[span.LastToken].Norm != "growth" {
		t.Fatalf("span covers %q..%q", toks[span.FirstToken].Norm, toks[span.LastToken].Norm)
	}
}

func TestMatch_ToleratesFillerInsertion(t *testing.T) {
	t.Parallel()

	// The interjection "well," exists only in the transcript; the excerpt is
	// the LLM's cleaned-up quote. One insertion sits inside the 15% budget.
	idx := buildIndex(t, []types.Utterance{
		{Speaker: "A", Text: "You can't go into a bank and ask for that.", StartMS: 0, EndMS: 5000},
		{Speaker: "A", Text: "And then the bank would be like, well, this is BS. You know.", StartMS: 5000, EndMS: 12000},
	})

	span, err := Match(idx, "the bank would be like this is BS", DefaultConfig())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if span.Score >= 1 || span.Score <= 0.8 {
		t.Fatalf("expected one tolerated edit, score %v", span.Score)
	}
	// Timestamps snap to the owning utterance's boundaries, not mid-utterance.
	if span.StartMS != 5000 || span.EndMS != 12000 {
		t.Fatalf("expected utterance-boundary span [5000,12000], got [%d,%d]", span.StartMS, span.EndMS)
	}
	toks := idx.Tokens()
	if toks[span.FirstToken].Norm != "the" || toks[span.LastToken].Norm != "bs" {
		t.Fatalf("span covers %q..%q", toks[span.FirstToken].Norm, toks[span.LastToken].Norm)
	}
}

func TestMatch_RejectsBeyondTolerance(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, []types.Utterance{
		{Speaker: "A", Text: "the central government has told us to maximize your production this year", StartMS: 0, EndMS: 8000},
	})

	// Ten query tokens, budget 2, but five of them disagree with the text.
	_, err := Match(idx, "a local ministry has asked them to maximize your production", DefaultConfig())
	if !errors.Is(err, ErrNoConfidentMatch) {
		t.Fatalf("expected ErrNoConfidentMatch, got %v", err)
	}
}

func TestMatch_RejectsUnrelatedShortExcerpt(t *testing.T) {
	t.Parallel()

	// Two query tokens, so the budget floor alone would let a window of two
	// fully substituted tokens through at score 0. The score floor must refuse.
	idx := buildIndex(t, []types.Utterance{
		{Speaker: "A", Text: "completely unrelated words spoken here", StartMS: 0, EndMS: 5000},
	})

	_, err := Match(idx, "hello there", DefaultConfig())
	if !errors.Is(err, ErrNoConfidentMatch) {
		t.Fatalf("expected ErrNoConfidentMatch, got %v", err)
	}
}

func TestMatch_ShortExcerptWithinScoreFloor(t *testing.T) {
	t.Parallel()

	// One of two tokens matches: score 0.5 sits exactly on the default floor.
	idx := buildIndex(t, []types.Utterance{
		{Speaker: "A", Text: "hello everyone out there", StartMS: 0, EndMS: 3000},
	})

	span, err := Match(idx, "hello there", DefaultConfig())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if span.Score < 0.5 {
		t.Fatalf("score %v below floor", span.Score)
	}
}

func TestMatch_EmptyExcerpt(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, []types.Utterance{
		{Speaker: "A", Text: "hello world", StartMS: 0, EndMS: 1000},
	})
	_, err := Match(idx, "... !!! ---", DefaultConfig())
	if !errors.Is(err, ErrEmptyExcerpt) {
		t.Fatalf("expected ErrEmptyExcerpt, got %v", err)
	}
}

func TestMatchAll_RanksRecurrences(t *testing.T) {
	t.Parallel()

	// The same phrase occurs twice, once exactly and once with a word swapped.
	idx := buildIndex(t, []types.Utterance{
		{Speaker: "A", Text: "scaling compute is the whole story of this decade frankly speaking", StartMS: 0, EndMS: 6000},
		{Speaker: "B", Text: "some unrelated chatter goes on here for a while longer", StartMS: 6000, EndMS: 12000},
		{Speaker: "A", Text: "scaling compute was the whole story of this decade frankly speaking", StartMS: 12000, EndMS: 18000},
	})

	spans, err := MatchAll(idx, "scaling compute is the whole story of this decade frankly speaking", DefaultConfig())
	if err != nil {
		t.Fatalf("match all: %v", err)
	}
	if len(spans) < 2 {
		t.Fatalf("expected both recurrences, got %d spans", len(spans))
	}
	if spans[0].Score <= spans[1].Score {
		t.Fatalf("expected ranked order, scores %v then %v", spans[0].Score, spans[1].Score)
	}
	if spans[0].StartMS != 0 {
		t.Fatalf("expected the exact occurrence ranked first, got start %dms", spans[0].StartMS)
	}
}

func TestMatch_NonChronologicalQueriesIndependent(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, []types.Utterance{
		{Speaker: "A", Text: "first we cover the early history of the field", StartMS: 0, EndMS: 5000},
		{Speaker: "A", Text: "later we get to the modern breakthroughs everyone knows", StartMS: 5000, EndMS: 10000},
	})

	late, err := Match(idx, "later we get to the modern breakthroughs everyone knows", DefaultConfig())
	if err != nil {
		t.Fatalf("late match: %v", err)
	}
	early, err := Match(idx, "first we cover the early history of the field", DefaultConfig())
	if err != nil {
		t.Fatalf("early match: %v", err)
	}
	if late.StartMS != 5000 || early.StartMS != 0 {
		t.Fatalf("unexpected spans: early [%d,%d] late [%d,%d]", early.StartMS, early.EndMS, late.StartMS, late.EndMS)
	}
}
