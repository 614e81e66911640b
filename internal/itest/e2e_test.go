//go:build integration

package itest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/pipeline"
)

func TestE2E(t *testing.T) {
	if os.Getenv("ASSEMBLYAI_API_KEY") == "" {
		t.Fatalf("ASSEMBLYAI_API_KEY is required for itest")
	}
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Fatalf("OPENAI_API_KEY is required for itest")
	}

	tmp := t.TempDir()
	in := buildSpeechFixture(t, tmp)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	cfg := pipeline.Config{
		InputMedia:    in,
		Episode:       "itest-episode",
		EpisodesDir:   filepath.Join(tmp, "episodes"),
		DataDir:       filepath.Join(tmp, "data"),
		CacheDir:      filepath.Join(tmp, ".cache"),
		ClipsN:        2,
		Workers:       2,
		RenderTimeout: 5 * time.Minute,
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",

		AssemblyAIAPIKey: os.Getenv("ASSEMBLYAI_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-2024-08-06"
	}

	if err := pipeline.Run(ctx, cfg); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	// The transcript cache must exist so later iterations can skip ASR.
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "transcripts", "itest-episode.json")); err != nil {
		t.Fatalf("missing transcript cache: %v", err)
	}

	clipsDir := filepath.Join(cfg.EpisodesDir, "itest-episode", "clips")
	entries, err := os.ReadDir(clipsDir)
	if err != nil {
		t.Fatalf("read clips dir: %v", err)
	}
	var videos int
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".mp4") {
			continue
		}
		videos++
		sec, err := probeDurationSeconds(filepath.Join(clipsDir, e.Name()))
		if err != nil {
			t.Fatalf("probe %s: %v", e.Name(), err)
		}
		if sec <= 0 {
			t.Fatalf("clip %s has zero duration", e.Name())
		}
		hook := strings.TrimSuffix(e.Name(), ".mp4")
		if _, err := os.Stat(filepath.Join(clipsDir, hook+"_metadata.json")); err != nil {
			t.Fatalf("clip %s has no record: %v", e.Name(), err)
		}
		if _, err := os.Stat(filepath.Join(clipsDir, hook+".ass")); err != nil {
			t.Fatalf("clip %s has no subtitles: %v", e.Name(), err)
		}
	}
	if videos == 0 {
		t.Fatal("pipeline produced no clips")
	}
}

// buildSpeechFixture synthesizes a short spoken mp4 via espeak-ng + ffmpeg.
func buildSpeechFixture(t *testing.T, dir string) string {
	t.Helper()

	wav := filepath.Join(dir, "speech.wav")
	text := "Here is the key idea. Step one: do this. Step two: measure results. This is important."
	cmd := exec.Command("espeak-ng", "-w", wav, text)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("espeak-ng failed: %v\n%s", err, string(b))
	}

	in := filepath.Join(dir, "input.mp4")
	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:d=15",
		"-i", wav,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	return in
}
