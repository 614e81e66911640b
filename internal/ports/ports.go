package ports

import (
	"context"
	"time"

	"github.com/clipforge/clipforge/internal/types"
)

// MediaTool drives the external media processor (ffmpeg in production).
type MediaTool interface {
	// ExtractAudio produces a 16kHz mono WAV suitable for transcription upload.
	ExtractAudio(ctx context.Context, inPath, outWav string) error
	// ExtractSegment cuts [startMS, endMS) out of the source, re-encoding for
	// frame-accurate boundaries.
	ExtractSegment(ctx context.Context, inPath string, startMS, endMS int64, outPath string) error
	// Concat joins already-encoded segment files into one output.
	Concat(ctx context.Context, segPaths []string, outPath string) error
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Transcriber is the speech-to-text collaborator. Implementations must return
// utterances ordered and non-overlapping on the source clock.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (types.Transcript, error)
}

// PromptConfig is the explicit configuration for generation requests. It
// replaces any module-level prompt state: callers own the example set and the
// target count.
type PromptConfig struct {
	// ExampleTweets are style exemplars included verbatim in the prompt.
	ExampleTweets []string
	// TargetClips is how many excerpt candidates one pass should propose.
	TargetClips int
}

// ReviseRequest carries a clip's current derived state plus human feedback
// back to the generation service.
type ReviseRequest struct {
	TweetText          string
	SegmentTranscripts []string
	Feedback           string
}

// ExcerptGenerator is the text-generation collaborator. Proposed transcripts
// are claimed verbatim but not guaranteed; the matcher absorbs the drift.
type ExcerptGenerator interface {
	Propose(ctx context.Context, readableTranscript string, cfg PromptConfig) ([]types.ExcerptCandidate, error)
	Revise(ctx context.Context, readableTranscript string, req ReviseRequest) (types.ExcerptCandidate, error)
}
