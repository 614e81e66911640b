// Package render materializes a cut list into one output media file via the
// external media tool. Output is written to a staging area and moved into
// place only on success, so a failed render never leaves a partial artifact
// and never destroys the previous one.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/types"
)

// ErrSourceNotFound means the source media file is missing; fatal to the clip.
var ErrSourceNotFound = errors.New("render: source media not found")

// ToolError wraps an external tool failure (non-zero exit or timeout) with
// its captured diagnostics. Retryable by the caller.
type ToolError struct {
	Op  string
	Err error
}

func (e *ToolError) Error() string { return fmt.Sprintf("render: %s: %v", e.Op, e.Err) }
func (e *ToolError) Unwrap() error { return e.Err }

type Orchestrator struct {
	media   ports.MediaTool
	timeout time.Duration
}

// New builds an orchestrator. timeout bounds one full render; zero means the
// caller's context is the only bound.
func New(media ports.MediaTool, timeout time.Duration) *Orchestrator {
	return &Orchestrator{media: media, timeout: timeout}
}

// Render extracts every segment of the cut list from sourceMedia and
// concatenates them into outPath. Idempotent: an unchanged cut list
// deterministically overwrites the prior artifact.
func (o *Orchestrator) Render(ctx context.Context, sourceMedia string, cuts []types.CutSegment, outPath string) error {
	if _, err := os.Stat(sourceMedia); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceMedia)
	}
	if len(cuts) == 0 {
		return errors.New("render: empty cut list")
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	staging := filepath.Join(filepath.Dir(outPath), ".render-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("render: create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	ext := filepath.Ext(outPath)
	segPaths := make([]string, 0, len(cuts))
	for i, seg := range cuts {
		segPath := filepath.Join(staging, fmt.Sprintf("seg-%03d%s", i+1, ext))
		slog.Debug("extracting segment",
			"index", i+1,
			"start_ms", seg.StartMS,
			"end_ms", seg.EndMS,
		)
		if err := o.media.ExtractSegment(ctx, sourceMedia, seg.StartMS, seg.EndMS, segPath); err != nil {
			return &ToolError{Op: fmt.Sprintf("extract segment %d", i+1), Err: err}
		}
		segPaths = append(segPaths, segPath)
	}

	tmpOut := segPaths[0]
	if len(segPaths) > 1 {
		tmpOut = filepath.Join(staging, "clip"+ext)
		if err := o.media.Concat(ctx, segPaths, tmpOut); err != nil {
			return &ToolError{Op: "concat segments", Err: err}
		}
	}

	// Staging lives beside outPath, so the rename is atomic on one filesystem.
	if err := os.Rename(tmpOut, outPath); err != nil {
		return fmt.Errorf("render: move artifact into place: %w", err)
	}
	slog.Info("rendered clip", "output", outPath, "segments", len(cuts))
	return nil
}
