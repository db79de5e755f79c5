package cli

import (
	"github.com/spf13/cobra"

	"lending-alerts/internal/app"
)

var notifyDebtorsOnce bool

var notifyDebtorsCmd = &cobra.Command{
	Use:   "notify-debtors",
	Short: "Remind subscribers about maturing fixed borrows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().NotifyDebtors(cmd.Context(), app.NotifyDebtorsOptions{
			Once: notifyDebtorsOnce,
		})
	},
}

func init() {
	notifyDebtorsCmd.Flags().BoolVar(&notifyDebtorsOnce, "once", false, "Run a single campaign tick and exit")
}
