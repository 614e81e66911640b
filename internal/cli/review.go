package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/review"
)

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <input>",
		Short: "Serve the review API for an episode's draft clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCmd(cmd, args[0])
			if err != nil {
				return err
			}

			uc, st, cfg := pipeline.Build(cfg)
			port, _ := cmd.Flags().GetInt("port")

			absIn, err := filepath.Abs(cfg.InputMedia)
			if err != nil {
				return err
			}
			return review.NewServer(uc, st, cfg.Episode, absIn, port).Start()
		},
	}
	addPipelineFlags(cmd)
	cmd.Flags().Int("port", 5000, "Review API port")
	return cmd
}
