package transcript

import (
	"errors"
	"testing"

	"github.com/clipforge/clipforge/internal/types"
)

func TestBuildIndex_Empty(t *testing.T) {
	t.Parallel()

	_, err := BuildIndex(types.Transcript{Episode: "ep"})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestBuildIndex_RejectsOverlap(t *testing.T) {
	t.Parallel()

	_, err := BuildIndex(types.Transcript{Utterances: []types.Utterance{
		{Speaker: "A", Text: "one", StartMS: 0, EndMS: 1000},
		{Speaker: "B", Text: "two", StartMS: 500, EndMS: 1500},
	}})
	if err == nil {
		t.Fatal("expected overlap to be rejected")
	}
}

func TestBuildIndex_NormalizesAndKeepsRaw(t *testing.T) {
	t.Parallel()

	idx, err := BuildIndex(types.Transcript{Utterances: []types.Utterance{
		{Speaker: "A", Text: "Well, this is BS. You know...", StartMS: 0, EndMS: 3000},
	}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	toks := idx.Tokens()
	wantNorm := []string{"well", "this", "is", "bs", "you", "know"}
	if len(toks) != len(wantNorm) {
		t.Fatalf("expected %d tokens, got %d", len(wantNorm), len(toks))
	}
	for i, w := range wantNorm {
		if toks[i].Norm != w {
			t.Fatalf("token %d: norm %q, want %q", i, toks[i].Norm, w)
		}
	}
	if toks[0].Raw != "Well," {
		t.Fatalf("expected raw form preserved, got %q", toks[0].Raw)
	}
	if got := idx.VerbatimRange(0, 3); got != "Well, this is BS." {
		t.Fatalf("verbatim range: %q", got)
	}
}

func TestBuildIndex_InterpolatesTimestamps(t *testing.T) {
	t.Parallel()

	idx, err := BuildIndex(types.Transcript{Utterances: []types.Utterance{
		{Speaker: "A", Text: "a b c", StartMS: 1000, EndMS: 3000},
	}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	toks := idx.Tokens()
	want := []int64{1000, 2000, 3000}
	for i, w := range want {
		if toks[i].AtMS != w {
			t.Fatalf("token %d: at %dms, want %dms", i, toks[i].AtMS, w)
		}
	}
}

func TestBuildIndex_DropsPunctuationOnlyTokens(t *testing.T) {
	t.Parallel()

	idx, err := BuildIndex(types.Transcript{Utterances: []types.Utterance{
		{Speaker: "A", Text: "yes - no", StartMS: 0, EndMS: 1000},
	}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := len(idx.Tokens()); got != 2 {
		t.Fatalf("expected the dash to be dropped, got %d tokens", got)
	}
}

func TestNormalizeToken_Table(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Hello,":  "hello",
		"BS.":     "bs",
		"---":     "",
		"don't":   "dont",
		"42ms":    "42ms",
		"(yeah)!": "yeah",
	}
	for in, want := range tests {
		if got := NormalizeToken(in); got != want {
			t.Fatalf("NormalizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}
