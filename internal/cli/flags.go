package cli

import (
	"github.com/spf13/cobra"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/app"
)

var flagsKind string

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Display current risk and neglect flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.FlagsOptions{
			Kind: flagsKind,
		}
		return getApp().Flags(cmd.Context(), opts)
	},
}

func init() {
	flagsCmd.Flags().StringVar(&flagsKind, "kind", "", "Restrict output to one kind: risk or neglect")
}
