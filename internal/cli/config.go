package cli

import (
	"github.com/spf13/cobra"
)

var configGetSection string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the retailer configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the resolved retailer configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ConfigGet(cmd.Context(), configGetSection)
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set key=value [key=value...]",
	Short:   "Update retailer configuration fields",
	Example: "  goldboard config set shopName=\"Lakshmi Jewellers\" gold24kMargin=150 showWithGST=false",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ConfigSet(cmd.Context(), args)
	},
}

var configResetCmd = &cobra.Command{
	Use:       "reset profile|rates|visual",
	Short:     "Restore one configuration section to defaults",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"profile", "rates", "visual"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ConfigReset(cmd.Context(), args[0])
	},
}

var configFreezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Stop live ticks from reaching the board",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ConfigFreeze(cmd.Context(), true)
	},
}

var configUnfreezeCmd = &cobra.Command{
	Use:   "unfreeze",
	Short: "Resume live ticks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ConfigFreeze(cmd.Context(), false)
	},
}

func init() {
	configGetCmd.Flags().StringVar(&configGetSection, "section", "", "Only print one section (profile, rates, visual)")

	configCmd.AddCommand(configGetCmd, configSetCmd, configResetCmd, configFreezeCmd, configUnfreezeCmd)
}
