package types

import (
	"errors"
	"fmt"
)

// Utterance is one speaker turn from the speech-to-text service.
// Times are milliseconds on the source recording clock.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

type Transcript struct {
	Episode    string      `json:"episode"`
	Utterances []Utterance `json:"utterances"`
}

// Validate checks the ordering invariants the rest of the pipeline relies on:
// utterances are non-overlapping and monotonically non-decreasing in start time.
func (t Transcript) Validate() error {
	for i, u := range t.Utterances {
		if u.EndMS < u.StartMS {
			return fmt.Errorf("utterance %d: end %dms before start %dms", i, u.EndMS, u.StartMS)
		}
		if i == 0 {
			continue
		}
		prev := t.Utterances[i-1]
		if u.StartMS < prev.StartMS {
			return fmt.Errorf("utterance %d: start %dms before previous start %dms", i, u.StartMS, prev.StartMS)
		}
		if u.StartMS < prev.EndMS {
			return fmt.Errorf("utterance %d: overlaps previous (starts %dms, previous ends %dms)", i, u.StartMS, prev.EndMS)
		}
	}
	return nil
}

// ExcerptCandidate is one proposed clip from the generation service. The
// transcript field is claimed verbatim but must be treated as loosely quoted.
type ExcerptCandidate struct {
	TweetText       string `json:"tweet_text"`
	ExactTranscript string `json:"transcript"`
}

// MatchedSpan is a run of index tokens judged to correspond to an excerpt.
// Timestamps cover whole utterances at both ends, never a mid-word cut.
type MatchedSpan struct {
	FirstToken int
	LastToken  int
	StartMS    int64
	EndMS      int64
	Score      float64
}

// CutSegment is one renderable [StartMS, EndMS) interval plus the verbatim
// original-form transcript text it spans.
type CutSegment struct {
	StartMS    int64
	EndMS      int64
	Transcript string
}

func (s CutSegment) DurationMS() int64 { return s.EndMS - s.StartMS }

// Review statuses for a clip record.
const (
	StatusDraft    = "draft"
	StatusApproved = "approved"
)

type SegmentStamp struct {
	StartMS    int64 `json:"start_ms"`
	DurationMS int64 `json:"duration_ms"`
}

// ClipRecord is the durable unit the review collaborator reads and edits.
// Field names are part of the on-disk contract; do not rename.
type ClipRecord struct {
	Hook               string         `json:"hook"`
	TweetText          string         `json:"tweet_text"`
	Timestamps         []SegmentStamp `json:"timestamps"`
	SegmentTranscripts []string       `json:"segment_transcripts"`
	Status             string         `json:"status"`
	VideoFile          string         `json:"video_file,omitempty"`
}

func (r ClipRecord) Validate() error {
	if r.Hook == "" {
		return errors.New("clip record: empty hook")
	}
	if len(r.Timestamps) != len(r.SegmentTranscripts) {
		return fmt.Errorf("clip record %s: %d timestamps vs %d segment transcripts",
			r.Hook, len(r.Timestamps), len(r.SegmentTranscripts))
	}
	switch r.Status {
	case StatusDraft, StatusApproved:
	default:
		return fmt.Errorf("clip record %s: unknown status %q", r.Hook, r.Status)
	}
	return nil
}

// TotalDurationMS is the summed play time of the cut list.
func (r ClipRecord) TotalDurationMS() int64 {
	var total int64
	for _, ts := range r.Timestamps {
		total += ts.DurationMS
	}
	return total
}
