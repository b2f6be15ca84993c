package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"goldboard/internal/storage"
)

// Show prints recent rate snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	snapshots, err := store.ListRecentSnapshots(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return a.printSnapshots(snapshots)
}

func (a *App) printSnapshots(snapshots []storage.RateSnapshot) error {
	if len(snapshots) == 0 {
		a.printf("no snapshots found\n")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\t24K\t22K\tSilver 999\tSilver 925\tGST\tFrozen\tStatus\tError")

	for _, snap := range snapshots {
		errMsg := ""
		if snap.Error != nil {
			errMsg = sanitizeInline(*snap.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%t\t%t\t%s\t%s\n",
			snap.Bucket.UTC().Format(time.RFC3339),
			formatDecimal(snap.Gold24K, 2),
			formatDecimal(snap.Gold22K, 2),
			formatDecimal(snap.Silver999, 2),
			formatDecimal(snap.Silver925, 2),
			snap.WithGST,
			snap.Frozen,
			snap.Status,
			errMsg,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
