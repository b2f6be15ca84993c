package cli

import (
	"github.com/spf13/cobra"

	"goldboard/internal/app"
)

var calcOpts app.CalcOptions

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Price one set of quotes with the shop's configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Calc(cmd.Context(), calcOpts)
	},
}

func init() {
	calcCmd.Flags().Float64Var(&calcOpts.Gold999, "gold", 0, "Primary feed 999 gold quote (INR / 10g)")
	calcCmd.Flags().Float64Var(&calcOpts.Gold995, "gold995", 0, "Primary feed 995 gold quote (INR / 10g)")
	calcCmd.Flags().Float64Var(&calcOpts.Silver, "silver", 0, "Secondary feed 999 silver quote (INR / g)")
	calcCmd.Flags().BoolVar(&calcOpts.SilverWithGST, "silver-with-gst", false, "Silver quote already includes GST")
	calcCmd.Flags().Float64Var(&calcOpts.SecondaryGold, "secondary-gold", 0, "Secondary feed gold quote used when --gold is absent")
}
