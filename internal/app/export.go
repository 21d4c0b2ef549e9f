package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/storage"
)

// Export renders portfolio revenue totals by year as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	toYear := time.Now().UTC().Year() + 1
	if opts.ToYear > 0 {
		toYear = opts.ToYear
	}
	fromYear := toYear - a.Config.Export.MaxYears + 1
	if opts.FromYear > 0 {
		fromYear = opts.FromYear
	}
	if fromYear > toYear {
		return errors.New("from-year must not exceed to-year")
	}

	totals, err := store.ListYearTotals(ctx, fromYear, toYear)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		a.Logger.Info().Msg("no revenue totals found for export window")
		return nil
	}

	a.Logger.Info().Int("years", len(totals)).Msg("exporting revenue totals")

	if opts.CSVPath != "" {
		if err := writeTotalsCSV(opts.CSVPath, totals); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTotalsPNG(opts.PNGPath, totals); err != nil {
			return err
		}
	}

	return nil
}

func writeTotalsCSV(path string, totals []storage.YearTotal) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"year", "total_revenue", "contributing_accounts"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, yt := range totals {
		record := []string{
			strconv.Itoa(yt.Year),
			yt.Total.StringFixed(2),
			strconv.Itoa(yt.Account),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeTotalsPNG(path string, totals []storage.YearTotal) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(totals))
	for _, yt := range totals {
		bars = append(bars, chart.Value{
			Label: strconv.Itoa(yt.Year),
			Value: yt.Total.InexactFloat64(),
		})
	}

	graph := chart.BarChart{
		Title:    "Recognized revenue by year",
		Width:    1280,
		Height:   720,
		BarWidth: 60,
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
