package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"goldboard/internal/storage"
)

// Export renders snapshot history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

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

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	snapshots, err := store.ListSnapshotsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		a.Logger.Info().Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsampleSnapshots(snapshots, opts.MaxPoints)
	a.Logger.Info().Int("total", len(snapshots)).Int("exported", len(downsampled)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSnapshots(snapshots []storage.RateSnapshot, max int) []storage.RateSnapshot {
	if max <= 0 || len(snapshots) <= max {
		return snapshots
	}
	if max == 1 {
		return snapshots[len(snapshots)-1:]
	}

	result := make([]storage.RateSnapshot, 0, max)
	step := float64(len(snapshots)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}
		result = append(result, snapshots[idx])
	}
	return result
}

func writeSnapshotsCSV(path string, snapshots []storage.RateSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"bucket_ts", "gold_24k", "gold_22k", "silver_999", "silver_925", "gold_base", "silver_base", "with_gst", "frozen", "status", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snap := range snapshots {
		errMsg := ""
		if snap.Error != nil {
			errMsg = *snap.Error
		}
		record := []string{
			snap.Bucket.UTC().Format(time.RFC3339),
			snap.Gold24K.String(),
			snap.Gold22K.String(),
			snap.Silver999.String(),
			snap.Silver925.String(),
			snap.GoldBase.String(),
			snap.SilverBase.String(),
			strconv.FormatBool(snap.WithGST),
			strconv.FormatBool(snap.Frozen),
			snap.Status,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeSnapshotsPNG plots gold per 10 g on the primary axis and silver per
// gram on the secondary one.
func writeSnapshotsPNG(path string, snapshots []storage.RateSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(snapshots))
	gold24 := make([]float64, 0, len(snapshots))
	gold22 := make([]float64, 0, len(snapshots))
	silver := make([]float64, 0, len(snapshots))

	for _, snap := range snapshots {
		if snap.Status == storage.StatusErrored {
			continue
		}
		x = append(x, snap.Bucket)
		gold24 = append(gold24, snap.Gold24K.InexactFloat64())
		gold22 = append(gold22, snap.Gold22K.InexactFloat64())
		silver = append(silver, snap.Silver999.InexactFloat64())
	}
	if len(x) < 2 {
		return errors.New("not enough priced snapshots to plot")
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Gold (INR / 10g)",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Silver (INR / g)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Gold 24K",
				XValues: x,
				YValues: gold24,
			},
			chart.TimeSeries{
				Name:    "Gold 22K",
				XValues: x,
				YValues: gold22,
			},
			chart.TimeSeries{
				Name:    "Silver 999",
				XValues: x,
				YValues: silver,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

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
