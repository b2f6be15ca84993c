package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"goldboard/internal/board"
	"goldboard/internal/retailer"
)

// Calc prices one set of quotes with the shop's stored configuration and
// prints every stage of the pipeline.
func (a *App) Calc(ctx context.Context, opts CalcOptions) error {
	in := opts.input()
	if in.Feed == nil && in.Secondary == nil {
		return errors.New("at least one of --gold or --silver must be provided")
	}

	retailerSvc, _, closeAll, err := a.openRetailer(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	return a.printCalculation(retailerSvc.Current(), opts)
}

func (a *App) printCalculation(cfg retailer.Config, opts CalcOptions) error {
	in := opts.input()

	// freeze only matters for live sessions
	cfg.RatesFrozen = false
	b := board.New(a.newCalculator(), cfg, a.Logger)
	defer b.Close()
	if in.Feed != nil {
		b.OnPrimary(*in.Feed)
	}
	if in.Secondary != nil {
		b.OnSecondary(*in.Secondary)
	}
	snap := b.Snapshot()

	a.printf("%s (GST %s)\n", cfg.ShopName, gstLabel(snap.WithGST))
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Purity\tBase\t+Margin\t+GST\tMaking\tFinal\tDisplay")
	for _, view := range snap.Prices {
		if !view.Visible {
			continue
		}
		making := "-"
		if view.Rate.MakingCharges != nil {
			making = formatDecimal(*view.Rate.MakingCharges, 2)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			view.Label,
			formatDecimal(view.Rate.BasePrice, 2),
			formatDecimal(view.Rate.PriceWithMargin, 2),
			formatDecimal(view.Rate.PriceWithGST, 2),
			making,
			formatDecimal(view.Rate.FinalPrice, 2),
			view.Display,
		)
	}
	return writer.Flush()
}

func gstLabel(with bool) string {
	if with {
		return "included"
	}
	return "excluded"
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
