// Package cutlist turns matched spans into an ordered, renderable cut list:
// padding around speech onsets, a minimum-duration floor, and jump-cut gap
// merging. Segment order follows excerpt order, which may be
// non-chronological relative to the source recording.
package cutlist

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/clipforge/clipforge/internal/domain/transcript"
	"github.com/clipforge/clipforge/internal/types"
)

// ErrDegenerateSegment is returned for an empty cut list or a segment whose
// end does not exceed its start after all adjustments.
var ErrDegenerateSegment = errors.New("cutlist: degenerate segment")

type Config struct {
	// Lead/trail padding keeps breath and speech onset from being truncated.
	LeadPadMS  int64
	TrailPadMS int64
	// MinSegmentMS is the floor a padded segment is grown outward to reach.
	MinSegmentMS int64
	// JumpCutGapMS: spans closer together than this merge into one segment
	// instead of producing a jarring micro-cut.
	JumpCutGapMS int64
}

func DefaultConfig() Config {
	return Config{
		LeadPadMS:    250,
		TrailPadMS:   400,
		MinSegmentMS: 1200,
		JumpCutGapMS: 1500,
	}
}

type segment struct {
	startMS, endMS int64
	firstUtt       int
	lastUtt        int
}

// Assemble converts matched spans into the final cut list. Spans arrive in
// excerpt order and stay in that order.
func Assemble(idx *transcript.Index, spans []types.MatchedSpan, cfg Config) ([]types.CutSegment, error) {
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no spans", ErrDegenerateSegment)
	}

	toks := idx.Tokens()
	segs := make([]segment, 0, len(spans))
	for i, sp := range spans {
		if sp.FirstToken < 0 || sp.LastToken >= len(toks) || sp.FirstToken > sp.LastToken {
			return nil, fmt.Errorf("%w: span %d has invalid token range [%d,%d]", ErrDegenerateSegment, i, sp.FirstToken, sp.LastToken)
		}
		s := segment{
			startMS:  sp.StartMS,
			endMS:    sp.EndMS,
			firstUtt: toks[sp.FirstToken].UttIndex,
			lastUtt:  toks[sp.LastToken].UttIndex,
		}
		s.startMS = clipStart(idx, s.firstUtt, s.startMS-cfg.LeadPadMS)
		s.endMS = clipEnd(idx, s.lastUtt, s.endMS+cfg.TrailPadMS)
		segs = append(segs, s)
	}

	growToMinimum(idx, segs, cfg.MinSegmentMS)
	merged := mergeJumpCuts(segs, cfg.JumpCutGapMS)

	out := make([]types.CutSegment, 0, len(merged))
	for i, s := range merged {
		if s.endMS <= s.startMS {
			return nil, fmt.Errorf("%w: segment %d is [%dms,%dms]", ErrDegenerateSegment, i, s.startMS, s.endMS)
		}
		out = append(out, types.CutSegment{
			StartMS:    s.startMS,
			EndMS:      s.endMS,
			Transcript: idx.UtteranceText(s.firstUtt, s.lastUtt),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty cut list", ErrDegenerateSegment)
	}
	return out, nil
}

// clipStart pads backward from the utterance that owns the span start, but
// never into a different speaker's utterance. Padding into silence between
// turns, or into the same speaker's previous utterance, is allowed.
func clipStart(idx *transcript.Index, firstUtt int, want int64) int64 {
	if want < 0 {
		want = 0
	}
	speaker := idx.Utterance(firstUtt).Speaker
	floor := idx.Utterance(firstUtt).StartMS
	for i := firstUtt - 1; i >= 0; i-- {
		u := idx.Utterance(i)
		if u.EndMS <= want {
			break
		}
		if u.Speaker != speaker {
			if want < u.EndMS {
				want = u.EndMS
			}
			break
		}
		if want >= u.StartMS {
			break
		}
	}
	if want > floor {
		want = floor
	}
	return want
}

func clipEnd(idx *transcript.Index, lastUtt int, want int64) int64 {
	speaker := idx.Utterance(lastUtt).Speaker
	ceil := idx.Utterance(lastUtt).EndMS
	for i := lastUtt + 1; i < idx.UtteranceCount(); i++ {
		u := idx.Utterance(i)
		if u.StartMS >= want {
			break
		}
		if u.Speaker != speaker {
			if want > u.StartMS {
				want = u.StartMS
			}
			break
		}
		if want <= u.EndMS {
			break
		}
	}
	if want < ceil {
		want = ceil
	}
	return want
}

// growToMinimum extends under-length segments outward until they hit the
// minimum duration, a foreign-speaker boundary, or a chronologically adjacent
// sibling segment.
func growToMinimum(idx *transcript.Index, segs []segment, minMS int64) {
	if minMS <= 0 {
		return
	}
	order := make([]int, len(segs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return segs[order[a]].startMS < segs[order[b]].startMS })

	for pos, i := range order {
		s := &segs[i]
		deficit := minMS - (s.endMS - s.startMS)
		if deficit <= 0 {
			continue
		}

		// Trail first: speech decays slower than it onsets.
		wantEnd := clipEnd(idx, s.lastUtt, s.endMS+deficit)
		if pos+1 < len(order) {
			if next := segs[order[pos+1]].startMS; wantEnd > next {
				wantEnd = next
			}
		}
		if wantEnd > s.endMS {
			s.endMS = wantEnd
		}

		deficit = minMS - (s.endMS - s.startMS)
		if deficit <= 0 {
			continue
		}
		wantStart := clipStart(idx, s.firstUtt, s.startMS-deficit)
		if pos > 0 {
			if prev := segs[order[pos-1]].endMS; wantStart < prev {
				wantStart = prev
			}
		}
		if wantStart < s.startMS {
			s.startMS = wantStart
		}
	}
}

// mergeJumpCuts folds consecutive segments whose source-time gap is below the
// threshold into one continuous segment. Consecutive means adjacent in
// excerpt order; segments far apart on the timeline stay distinct cuts.
func mergeJumpCuts(segs []segment, gapMS int64) []segment {
	if len(segs) == 0 {
		return nil
	}
	out := []segment{segs[0]}
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if gap(*last, s) <= gapMS {
			if s.startMS < last.startMS {
				last.startMS = s.startMS
			}
			if s.endMS > last.endMS {
				last.endMS = s.endMS
			}
			if s.firstUtt < last.firstUtt {
				last.firstUtt = s.firstUtt
			}
			if s.lastUtt > last.lastUtt {
				last.lastUtt = s.lastUtt
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// gap is the source-time distance between two segments; zero when they touch
// or overlap.
func gap(a, b segment) int64 {
	switch {
	case b.startMS > a.endMS:
		return b.startMS - a.endMS
	case a.startMS > b.endMS:
		return a.startMS - b.endMS
	default:
		return 0
	}
}

// Stamps converts a cut list into the persisted start/duration form.
func Stamps(segs []types.CutSegment) []types.SegmentStamp {
	out := make([]types.SegmentStamp, 0, len(segs))
	for _, s := range segs {
		out = append(out, types.SegmentStamp{StartMS: s.StartMS, DurationMS: s.DurationMS()})
	}
	return out
}

// Transcripts extracts the per-segment verbatim text in cut-list order.
func Transcripts(segs []types.CutSegment) []string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, strings.TrimSpace(s.Transcript))
	}
	return out
}
