package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulatePrevious float64
	simulateCurrent  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次金价异动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous 与 --current 必须大于 0")
		}

		previous := decimal.NewFromFloat(simulatePrevious)
		current := decimal.NewFromFloat(simulateCurrent)
		return getApp().SimulateAlert(cmd.Context(), previous, current)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "上一个 bucket 的 999 金价 (INR / 10g)")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "当前 bucket 的 999 金价 (INR / 10g)")
}
