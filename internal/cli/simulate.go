package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"lending-alerts/internal/app"
	"lending-alerts/internal/notify"
)

var (
	simulateDestination string
	simulateTitle       string
	simulateBody        string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一条告警并验证频道路由",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateTitle == "" {
			return errors.New("--title 不能为空")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Destination: simulateDestination,
			Title:       simulateTitle,
			Body:        simulateBody,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateDestination, "destination", notify.DestMonitoring, "告警目的地 (monitoring/whale-alert/transactions/receipts)")
	simulateCmd.Flags().StringVar(&simulateTitle, "title", "", "告警标题")
	simulateCmd.Flags().StringVar(&simulateBody, "body", "", "告警正文")
}
