package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/clipforge/clipforge/internal/domain/align"
	"github.com/clipforge/clipforge/internal/domain/cutlist"
	"github.com/clipforge/clipforge/internal/domain/subtitles"
	"github.com/clipforge/clipforge/internal/domain/transcript"
	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/render"
	"github.com/clipforge/clipforge/internal/types"
)

// RecordStore is the slice of the clip store the orchestration needs.
// *store.Store satisfies it.
type RecordStore interface {
	Load(episode, hook string) (types.ClipRecord, error)
	Save(episode, hook string, rec types.ClipRecord) error
	Lock(episode, hook string) (func(), error)
	VideoPath(episode, hook string) string
	SubtitlePath(episode, hook string) string
}

type Deps struct {
	Media ports.MediaTool
	STT   ports.Transcriber
	Gen   ports.ExcerptGenerator
	Store RecordStore
}

type Config struct {
	Align  align.Config
	Cut    cutlist.Config
	Prompt ports.PromptConfig
	// DataDir holds the transcript JSON cache (DataDir/transcripts/<episode>.json).
	DataDir string
	// RenderTimeout bounds one clip render; the external tool is killed past it.
	RenderTimeout time.Duration
	// Workers bounds the per-excerpt pipeline pool. Excerpts are independent.
	Workers int
}

type Usecase struct {
	d   Deps
	cfg Config
	r   *render.Orchestrator
}

func New(d Deps, cfg Config) Usecase {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return Usecase{d: d, cfg: cfg, r: render.New(d.Media, cfg.RenderTimeout)}
}

type Input struct {
	Episode     string
	SourceMedia string
	// CacheDir is scratch space for the extracted audio.
	CacheDir string
}

// ClipOutcome reports one excerpt's fate. A failed excerpt carries its error
// and is simply absent from the store; siblings are unaffected.
type ClipOutcome struct {
	Hook      string
	TweetText string
	Err       error
}

type Result struct {
	Transcript types.Transcript
	Outcomes   []ClipOutcome
}

// Run executes one full generation pass: transcribe (or reuse the cached
// transcript), propose excerpts, then match, assemble, render and persist
// each excerpt independently on a bounded worker pool.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	tr, err := u.loadOrTranscribe(ctx, in)
	if err != nil {
		return Result{}, err
	}

	idx, err := transcript.BuildIndex(tr)
	if err != nil {
		return Result{}, err
	}

	readable := ReadableTranscript(tr)
	cands, err := u.d.Gen.Propose(ctx, readable, u.cfg.Prompt)
	if err != nil {
		return Result{}, fmt.Errorf("generation pass: %w", err)
	}
	slog.Info("generation pass complete", "episode", in.Episode, "candidates", len(cands))

	outcomes := make([]ClipOutcome, len(cands))
	sem := make(chan struct{}, u.cfg.Workers)
	var wg sync.WaitGroup
	for i, c := range cands {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c types.ExcerptCandidate) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = u.deriveClip(ctx, idx, in.Episode, in.SourceMedia, c)
		}(i, c)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			slog.Warn("excerpt dropped", "episode", in.Episode, "hook", o.Hook, "error", o.Err)
		}
	}
	return Result{Transcript: tr, Outcomes: outcomes}, nil
}

// deriveClip runs one excerpt through match -> assemble -> render -> save.
func (u Usecase) deriveClip(ctx context.Context, idx *transcript.Index, episode, sourceMedia string, cand types.ExcerptCandidate) ClipOutcome {
	hook := HookFor(cand.TweetText)
	out := ClipOutcome{Hook: hook, TweetText: cand.TweetText}

	cuts, err := u.deriveCutList(idx, cand.ExactTranscript)
	if err != nil {
		out.Err = err
		return out
	}

	unlock, err := u.d.Store.Lock(episode, hook)
	if err != nil {
		out.Err = err
		return out
	}
	defer unlock()

	videoPath := u.d.Store.VideoPath(episode, hook)
	if err := os.MkdirAll(filepath.Dir(videoPath), 0o755); err != nil {
		out.Err = fmt.Errorf("create clips dir: %w", err)
		return out
	}
	if err := u.r.Render(ctx, sourceMedia, cuts, videoPath); err != nil {
		out.Err = err
		return out
	}
	if err := writeSubtitleFile(u.d.Store.SubtitlePath(episode, hook), cuts); err != nil {
		out.Err = err
		return out
	}

	rec := types.ClipRecord{
		Hook:               hook,
		TweetText:          cand.TweetText,
		Timestamps:         cutlist.Stamps(cuts),
		SegmentTranscripts: cutlist.Transcripts(cuts),
		Status:             types.StatusDraft,
		VideoFile:          filepath.Base(videoPath),
	}
	if err := u.d.Store.Save(episode, hook, rec); err != nil {
		out.Err = err
		return out
	}
	slog.Info("clip saved", "episode", episode, "hook", hook, "segments", len(cuts))
	return out
}

// deriveCutList matches each paragraph of the claimed-verbatim excerpt as its
// own span, then assembles them in excerpt order. Most excerpts are a single
// paragraph and yield a single segment.
func (u Usecase) deriveCutList(idx *transcript.Index, excerpt string) ([]types.CutSegment, error) {
	parts := SplitExcerptParts(excerpt)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty excerpt", align.ErrEmptyExcerpt)
	}

	spans := make([]types.MatchedSpan, 0, len(parts))
	for _, p := range parts {
		span, err := align.Match(idx, p, u.cfg.Align)
		if err != nil {
			return nil, err
		}
		spans = append(spans, span)
	}
	return cutlist.Assemble(idx, spans, u.cfg.Cut)
}

type IterateInput struct {
	Episode     string
	Hook        string
	Feedback    string
	SourceMedia string
}

// Iterate re-derives one clip from human feedback. The replacement artifact
// is rendered to a staging path first, the record commits, and only then is
// the artifact swapped in; any failure up to the commit leaves the prior
// record and artifact exactly as they were. Status is forced back to draft so
// the revised clip gets re-reviewed.
func (u Usecase) Iterate(ctx context.Context, in IterateInput) (types.ClipRecord, error) {
	unlock, err := u.d.Store.Lock(in.Episode, in.Hook)
	if err != nil {
		return types.ClipRecord{}, err
	}
	defer unlock()

	rec, err := u.d.Store.Load(in.Episode, in.Hook)
	if err != nil {
		return types.ClipRecord{}, err
	}

	tr, err := u.loadCachedTranscript(in.Episode)
	if err != nil {
		return types.ClipRecord{}, err
	}
	idx, err := transcript.BuildIndex(tr)
	if err != nil {
		return types.ClipRecord{}, err
	}

	revised, err := u.d.Gen.Revise(ctx, ReadableTranscript(tr), ports.ReviseRequest{
		TweetText:          rec.TweetText,
		SegmentTranscripts: rec.SegmentTranscripts,
		Feedback:           in.Feedback,
	})
	if err != nil {
		return types.ClipRecord{}, fmt.Errorf("revise %s/%s: %w", in.Episode, in.Hook, err)
	}

	cuts, err := u.deriveCutList(idx, revised.ExactTranscript)
	if err != nil {
		return types.ClipRecord{}, err
	}

	// The replacement artifact is staged next to the final path and only
	// renamed over the prior one after the record commits. Any failure up to
	// and including the save leaves both the record and the old artifact
	// exactly as they were.
	videoPath := u.d.Store.VideoPath(in.Episode, in.Hook)
	subPath := u.d.Store.SubtitlePath(in.Episode, in.Hook)
	nextVideo := videoPath + ".next"
	nextSub := subPath + ".next"
	defer os.Remove(nextVideo)
	defer os.Remove(nextSub)

	if err := u.r.Render(ctx, in.SourceMedia, cuts, nextVideo); err != nil {
		return types.ClipRecord{}, err
	}
	if err := writeSubtitleFile(nextSub, cuts); err != nil {
		return types.ClipRecord{}, err
	}

	rec.TweetText = revised.TweetText
	rec.Timestamps = cutlist.Stamps(cuts)
	rec.SegmentTranscripts = cutlist.Transcripts(cuts)
	rec.Status = types.StatusDraft
	if err := u.d.Store.Save(in.Episode, in.Hook, rec); err != nil {
		return types.ClipRecord{}, err
	}

	if err := os.Rename(nextVideo, videoPath); err != nil {
		return types.ClipRecord{}, fmt.Errorf("swap artifact %s/%s: %w", in.Episode, in.Hook, err)
	}
	if err := os.Rename(nextSub, subPath); err != nil {
		return types.ClipRecord{}, fmt.Errorf("swap subtitles %s/%s: %w", in.Episode, in.Hook, err)
	}
	slog.Info("clip iterated", "episode", in.Episode, "hook", in.Hook, "segments", len(cuts))
	return rec, nil
}

// Approve marks a draft clip approved.
func (u Usecase) Approve(episode, hook string) (types.ClipRecord, error) {
	return u.updateLocked(episode, hook, func(rec *types.ClipRecord) {
		rec.Status = types.StatusApproved
	})
}

// SaveTweet stores edited promotional text without touching derived fields.
func (u Usecase) SaveTweet(episode, hook, tweetText string) (types.ClipRecord, error) {
	return u.updateLocked(episode, hook, func(rec *types.ClipRecord) {
		rec.TweetText = tweetText
	})
}

func (u Usecase) updateLocked(episode, hook string, mutate func(*types.ClipRecord)) (types.ClipRecord, error) {
	unlock, err := u.d.Store.Lock(episode, hook)
	if err != nil {
		return types.ClipRecord{}, err
	}
	defer unlock()

	rec, err := u.d.Store.Load(episode, hook)
	if err != nil {
		return types.ClipRecord{}, err
	}
	mutate(&rec)
	if err := u.d.Store.Save(episode, hook, rec); err != nil {
		return types.ClipRecord{}, err
	}
	return rec, nil
}

func writeSubtitleFile(path string, cuts []types.CutSegment) error {
	if err := os.WriteFile(path, []byte(subtitles.RenderClipASS(cuts)), 0o644); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	return nil
}

func (u Usecase) transcriptPath(episode string) string {
	return filepath.Join(u.cfg.DataDir, "transcripts", episode+".json")
}

func (u Usecase) loadCachedTranscript(episode string) (types.Transcript, error) {
	b, err := os.ReadFile(u.transcriptPath(episode))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("load transcript for %s (run the pipeline first): %w", episode, err)
	}
	var tr types.Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		return types.Transcript{}, fmt.Errorf("decode transcript for %s: %w", episode, err)
	}
	tr.Episode = episode
	if err := tr.Validate(); err != nil {
		return types.Transcript{}, err
	}
	return tr, nil
}

func (u Usecase) loadOrTranscribe(ctx context.Context, in Input) (types.Transcript, error) {
	if tr, err := u.loadCachedTranscript(in.Episode); err == nil {
		slog.Info("using cached transcript", "episode", in.Episode, "utterances", len(tr.Utterances))
		return tr, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return types.Transcript{}, err
	}

	wav := filepath.Join(in.CacheDir, "audio.wav")
	if err := os.MkdirAll(in.CacheDir, 0o755); err != nil {
		return types.Transcript{}, err
	}
	if err := u.d.Media.ExtractAudio(ctx, in.SourceMedia, wav); err != nil {
		return types.Transcript{}, err
	}
	defer os.Remove(wav)

	tr, err := u.d.STT.Transcribe(ctx, wav)
	if err != nil {
		return types.Transcript{}, err
	}
	tr.Episode = in.Episode
	if err := tr.Validate(); err != nil {
		return types.Transcript{}, fmt.Errorf("upstream transcript invalid: %w", err)
	}

	path := u.transcriptPath(in.Episode)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.Transcript{}, err
	}
	b, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return types.Transcript{}, err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return types.Transcript{}, err
	}
	slog.Info("transcript cached", "episode", in.Episode, "path", path)
	return tr, nil
}

// ReadableTranscript renders utterances as speaker-labelled blocks, the form
// the generation prompt consumes.
func ReadableTranscript(tr types.Transcript) string {
	var b strings.Builder
	current := ""
	for _, u := range tr.Utterances {
		if u.Speaker != current {
			current = u.Speaker
			fmt.Fprintf(&b, "SPEAKER %s:\n", current)
		}
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// SplitExcerptParts splits a proposed excerpt into paragraph parts, each
// matched as its own span. Blank lines separate parts.
func SplitExcerptParts(excerpt string) []string {
	var out []string
	for _, p := range strings.Split(excerpt, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HookFor derives a clip's stable identity from its tweet text: a slug of the
// leading words plus a short content hash. The hook survives iteration, which
// rewrites the tweet but keeps the record identity.
func HookFor(tweetText string) string {
	words := strings.Fields(tweetText)
	if len(words) > 6 {
		words = words[:6]
	}
	slug := slugify(strings.Join(words, " "))
	if slug == "" {
		slug = "clip"
	}
	sum := sha256.Sum256([]byte(tweetText))
	return slug + "-" + hex.EncodeToString(sum[:])[:8]
}

func slugify(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
