package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/app"
)

var onceAsOf string

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Execute a single batch run immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.OnceOptions{}
		if onceAsOf != "" {
			asOf, err := time.Parse(time.DateOnly, onceAsOf)
			if err != nil {
				return fmt.Errorf("invalid --as-of value: %w", err)
			}
			opts.AsOf = &asOf
		}
		return getApp().RunOnce(cmd.Context(), opts)
	},
}

func init() {
	onceCmd.Flags().StringVar(&onceAsOf, "as-of", "", "Classify as of this date (YYYY-MM-DD) instead of now")
}
