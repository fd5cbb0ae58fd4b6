package cmd

import (
	"encoding/json"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	donateProject string
	donateDonor   string
	donateAmount  string
)

var donateCmd = &cobra.Command{
	Use:   "donate",
	Short: "Donate to a project that is on the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		nd := map[string]any{
			"project_id": donateProject,
			"donor":      donateDonor,
			"amount":     json.Number(donateAmount),
		}
		return postAndPrint(cmd, "/v1/donations", nd)
	},
}

var donationCmd = &cobra.Command{
	Use:   "donation <id>",
	Short: "Print a donation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, "/v1/donations/"+args[0])
	},
}

var statsProject string

var donationStatsCmd = &cobra.Command{
	Use:   "donation-stats",
	Short: "Print the totals of confirmed donations",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/v1/donations/statistics"
		if statsProject != "" {
			path += "?project_id=" + url.QueryEscape(statsProject)
		}
		return getAndPrint(cmd, path)
	},
}

func init() {
	rootCmd.AddCommand(donateCmd, donationCmd, donationStatsCmd)
	donateCmd.Flags().StringVarP(&donateProject, "project", "p", "", "Project id.")
	donateCmd.Flags().StringVarP(&donateDonor, "donor", "f", "", "Donor address.")
	donateCmd.Flags().StringVarP(&donateAmount, "amount", "v", "0", "Amount to donate.")
	donationStatsCmd.Flags().StringVarP(&statsProject, "project", "p", "", "Only count donations to this project.")
}
