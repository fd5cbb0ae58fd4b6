package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Print the balance of an address, or of every address",
	Args:  cobra.MaximumNArgs(1),
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	path := "/v1/balances/list"
	if len(args) == 1 {
		path += "/" + args[0]
	}

	var result map[string]any
	if err := call(newClient(), http.MethodGet, path, nil, &result); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), result)
}
