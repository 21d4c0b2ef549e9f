package cli

import (
	"github.com/spf13/cobra"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/app"
)

var (
	exportFromYear int
	exportToYear   int
	exportPNGPath  string
	exportCSVPath  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export portfolio revenue by year as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			FromYear: exportFromYear,
			ToYear:   exportToYear,
			PNGPath:  exportPNGPath,
			CSVPath:  exportCSVPath,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportFromYear, "from-year", 0, "First year to export (defaults to config window)")
	exportCmd.Flags().IntVar(&exportToYear, "to-year", 0, "Last year to export (defaults to next calendar year)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
}
