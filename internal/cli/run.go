package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Transcribe an episode, generate clip candidates and render drafts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCmd(cmd, args[0])
			if err != nil {
				return err
			}
			if cfg.AssemblyAIAPIKey == "" {
				return errors.New("ASSEMBLYAI_API_KEY is required (set it in .env)")
			}
			if cfg.OpenAIAPIKey == "" {
				return errors.New("OPENAI_API_KEY is required (set it in .env)")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Hour)
			defer cancel()
			return pipeline.Run(ctx, cfg)
		},
	}
	addPipelineFlags(cmd)
	cmd.Flags().Int("clips", 10, "Number of clip candidates to request")
	cmd.Flags().Int("workers", 2, "Concurrent clip derivations")
	return cmd
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("episode", "", "Episode name (defaults to the input filename)")
	cmd.Flags().String("episodes", "episodes", "Episode output directory")
	cmd.Flags().String("data", "data", "Transcript cache directory")
	cmd.Flags().String("examples", "", "File with example tweets, separated by blank lines")
	cmd.Flags().Duration("render-timeout", 10*time.Minute, "Per-clip render timeout")
}

func configFromCmd(cmd *cobra.Command, input string) (pipeline.Config, error) {
	episode, _ := cmd.Flags().GetString("episode")
	episodesDir, _ := cmd.Flags().GetString("episodes")
	dataDir, _ := cmd.Flags().GetString("data")
	examplesPath, _ := cmd.Flags().GetString("examples")
	renderTimeout, _ := cmd.Flags().GetDuration("render-timeout")
	clipsN, err := cmd.Flags().GetInt("clips")
	if err != nil {
		clipsN = 1
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		workers = 1
	}

	examples, err := readExampleTweets(examplesPath)
	if err != nil {
		return pipeline.Config{}, err
	}

	return pipeline.Config{
		InputMedia:    input,
		Episode:       episode,
		EpisodesDir:   episodesDir,
		DataDir:       dataDir,
		CacheDir:      ".cache",
		ClipsN:        clipsN,
		Workers:       workers,
		RenderTimeout: renderTimeout,
		ExampleTweets: examples,

		FFmpegPath:  getenvDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_PATH", "ffprobe"),

		AssemblyAIAPIKey: os.Getenv("ASSEMBLYAI_API_KEY"),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getenvDefault("OPENAI_MODEL", "gpt-4o-2024-08-06"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIAllowedHosts: splitHosts(os.Getenv("OPENAI_ALLOWED_HOSTS")),
	}, nil
}

func splitHosts(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// readExampleTweets loads style exemplars for the generation prompt from a
// plain-text file, one tweet per blank-line-separated block.
func readExampleTweets(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	var out []string
	for _, block := range strings.Split(string(b), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out, nil
}
