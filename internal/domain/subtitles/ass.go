// Package subtitles renders an ASS subtitle track for an assembled clip, so
// the exported video can ship with captions without re-encoding.
package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/types"
)

const (
	charBudget = 42
	wordBudget = 9
)

type event struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// RenderClipASS lays the segment transcripts onto the concatenated clip
// timeline. Segment times in the cut list are source-relative; after concat
// the clip plays the segments back to back, so each segment's events start at
// the sum of the durations before it.
func RenderClipASS(segments []types.CutSegment) string {
	var events []event
	var offset time.Duration
	for _, seg := range segments {
		segDur := time.Duration(seg.DurationMS()) * time.Millisecond
		events = append(events, layoutSegment(seg.Transcript, offset, segDur)...)
		offset += segDur
	}
	return renderASS(events)
}

// layoutSegment wraps the text into caption lines and spreads the segment's
// duration across them proportional to line length. Utterance-level ASR gives
// no per-word timing inside a segment, so proportional pacing is the best
// available approximation.
func layoutSegment(text string, offset, segDur time.Duration) []event {
	lines := wrapLines(text)
	if len(lines) == 0 {
		return nil
	}

	total := 0
	for _, ln := range lines {
		total += len([]rune(ln))
	}
	if total == 0 {
		return nil
	}

	out := make([]event, 0, len(lines))
	cursor := offset
	for i, ln := range lines {
		dur := segDur * time.Duration(len([]rune(ln))) / time.Duration(total)
		end := cursor + dur
		if i == len(lines)-1 {
			end = offset + segDur
		}
		out = append(out, event{Start: cursor, End: end, Text: sanitizeASS(ln)})
		cursor = end
	}
	return out
}

func wrapLines(text string) []string {
	words := strings.Fields(text)
	var lines []string
	var cur []string
	curLen := 0
	for _, w := range words {
		wl := len([]rune(w))
		nextLen := curLen
		if curLen > 0 {
			nextLen++
		}
		nextLen += wl
		if len(cur) > 0 && (len(cur) >= wordBudget || nextLen > charBudget) {
			lines = append(lines, strings.Join(cur, " "))
			cur = cur[:0]
			curLen = 0
			nextLen = wl
		}
		cur = append(cur, w)
		curLen = nextLen
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	return lines
}

func renderASS(events []event) string {
	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ev := range events {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ev.Start))
		b.WriteString(",")
		b.WriteString(assTime(ev.End))
		b.WriteString(",Clip,,0,0,0,,")
		b.WriteString(ev.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Clip, Inter, 64, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,6,2,2, 80,80,85,1
`)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}
