package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/usecase"
)

func newIterateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iterate <input> <hook>",
		Short: "Re-derive one clip from feedback and replace its draft",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			feedback, _ := cmd.Flags().GetString("feedback")
			if feedback == "" {
				return errors.New("--feedback is required")
			}

			cfg, err := configFromCmd(cmd, args[0])
			if err != nil {
				return err
			}
			if cfg.OpenAIAPIKey == "" {
				return errors.New("OPENAI_API_KEY is required (set it in .env)")
			}

			uc, _, cfg := pipeline.Build(cfg)
			absIn, err := filepath.Abs(cfg.InputMedia)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			rec, err := uc.Iterate(ctx, usecase.IterateInput{
				Episode:     cfg.Episode,
				Hook:        args[1],
				Feedback:    feedback,
				SourceMedia: absIn,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revised %s (%d segments, %.1fs)\n",
				rec.Hook, len(rec.Timestamps), float64(rec.TotalDurationMS())/1000)
			return nil
		},
	}
	addPipelineFlags(cmd)
	cmd.Flags().String("feedback", "", "Reviewer feedback steering the revision")
	return cmd
}
