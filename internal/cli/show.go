package cli

import (
	"github.com/spf13/cobra"
)

var showCampaignCmd = &cobra.Command{
	Use:   "show-campaign",
	Short: "Display the latest campaign run record",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowCampaign(cmd.Context())
	},
}
