package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/app"
)

var (
	simStatus   string
	simPipeline string
	simType     string
	simStart    string
	simEnd      string
	simAmount   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Dry-run one synthetic deal through the normalizer and allocator",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simStatus == "" && simPipeline == "" {
			return errors.New("at least one of --status or --pipeline-status is required")
		}

		opts := app.SimulateOptions{
			Status:         simStatus,
			PipelineStatus: simPipeline,
			Type:           simType,
			ContractStart:  simStart,
			ContractEnd:    simEnd,
			Amount:         simAmount,
		}
		return getApp().Simulate(opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simStatus, "status", "", "Free-text deal status")
	simulateCmd.Flags().StringVar(&simPipeline, "pipeline-status", "", "Pipeline stage (preferred won signal)")
	simulateCmd.Flags().StringVar(&simType, "type", "standard", "Deal type (standard or service)")
	simulateCmd.Flags().StringVar(&simStart, "start", "", "Contract start date")
	simulateCmd.Flags().StringVar(&simEnd, "end", "", "Contract end date")
	simulateCmd.Flags().StringVar(&simAmount, "amount", "0", "Deal amount (tax exclusive)")
}
