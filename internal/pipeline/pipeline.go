package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/clipforge/clipforge/internal/domain/align"
	"github.com/clipforge/clipforge/internal/domain/cutlist"
	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/ports/adapters/assemblyai"
	"github.com/clipforge/clipforge/internal/ports/adapters/ffmpeg"
	"github.com/clipforge/clipforge/internal/ports/adapters/openai"
	"github.com/clipforge/clipforge/internal/store"
	"github.com/clipforge/clipforge/internal/usecase"
)

type Config struct {
	InputMedia string
	// Episode names the working directories; derived from the input filename
	// when empty.
	Episode string

	// EpisodesDir holds per-episode clip records and artifacts.
	// DataDir holds the transcript cache. CacheDir is scratch space.
	EpisodesDir string
	DataDir     string
	CacheDir    string

	ClipsN        int
	Workers       int
	RenderTimeout time.Duration

	// Example tweets passed into the generation prompt. Explicit config, not
	// a package constant, so callers can swap the style exemplars per show.
	ExampleTweets []string

	FFmpegPath  string
	FFprobePath string

	AssemblyAIAPIKey string

	OpenAIAPIKey string
	OpenAIModel  string
	// OpenAIBaseURL points at an OpenAI-compatible endpoint (OpenRouter in
	// practice). Non-default hosts must be allow-listed.
	OpenAIBaseURL      string
	OpenAIAllowedHosts []string
}

func (c Config) Validate() error {
	if c.InputMedia == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.InputMedia); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if c.ClipsN <= 0 {
		return errors.New("clips must be > 0")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if c.RenderTimeout <= 0 {
		return errors.New("render timeout must be > 0")
	}
	return openai.ValidateBaseURL(c.OpenAIBaseURL, c.OpenAIAllowedHosts)
}

func (c Config) withDefaults() Config {
	if c.Episode == "" {
		c.Episode = EpisodeName(c.InputMedia)
	}
	if c.EpisodesDir == "" {
		c.EpisodesDir = "episodes"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.CacheDir == "" {
		c.CacheDir = ".cache"
	}
	return c
}

// Build wires the adapters and returns the usecase plus the store it writes
// to. The review command shares this wiring with the batch run.
func Build(cfg Config) (usecase.Usecase, *store.Store, Config) {
	cfg = cfg.withDefaults()

	st := store.New(cfg.EpisodesDir, 0)
	uc := usecase.New(usecase.Deps{
		Media: ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath),
		STT:   assemblyai.New(cfg.AssemblyAIAPIKey),
		Gen:   openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL),
		Store: st,
	}, usecase.Config{
		Align: align.DefaultConfig(),
		Cut:   cutlist.DefaultConfig(),
		Prompt: ports.PromptConfig{
			ExampleTweets: cfg.ExampleTweets,
			TargetClips:   cfg.ClipsN,
		},
		DataDir:       cfg.DataDir,
		RenderTimeout: cfg.RenderTimeout,
		Workers:       cfg.Workers,
	})
	return uc, st, cfg
}

// Run executes one full generation pass for the input episode.
func Run(ctx context.Context, cfg Config) error {
	uc, _, cfg := Build(cfg)

	absIn, err := filepath.Abs(cfg.InputMedia)
	if err != nil {
		return err
	}

	cacheDir := filepath.Join(cfg.CacheDir, "runs", cfg.Episode)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}
	slog.Info("pipeline starting", "episode", cfg.Episode, "input", absIn, "clips", cfg.ClipsN)

	res, err := uc.Run(ctx, usecase.Input{
		Episode:     cfg.Episode,
		SourceMedia: absIn,
		CacheDir:    cacheDir,
	})
	if err != nil {
		return err
	}

	var saved, dropped int
	for _, o := range res.Outcomes {
		if o.Err != nil {
			dropped++
		} else {
			saved++
		}
	}
	slog.Info("pipeline finished", "episode", cfg.Episode, "saved", saved, "dropped", dropped)
	if saved == 0 && len(res.Outcomes) > 0 {
		return fmt.Errorf("all %d excerpt candidates failed", len(res.Outcomes))
	}
	return nil
}

// EpisodeName turns an input path into a filesystem-safe episode name.
func EpisodeName(inputPath string) string {
	name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	name = normalizePathSegment(name)
	if name == "" {
		name = "episode"
	}
	return name
}

func normalizePathSegment(s string) string {
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
