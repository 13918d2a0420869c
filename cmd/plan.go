package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/crc-cores/internal/cores"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the stages a run would execute",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("plan"); err != nil {
			return err
		}
		opts, err := pipelineOptions(cfg.Pipeline)
		if err != nil {
			return err
		}
		stages := cores.NewPipeline(opts).Plan(collectionsFromConfig(cfg.Collections))
		return cores.WritePlan(cmd.OutOrStdout(), stages)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
