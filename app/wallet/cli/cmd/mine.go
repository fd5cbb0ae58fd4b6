package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var (
	mineMiner string
	mineMax   int
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Ask the node to mine a block from the pool",
	RunE:  mineRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the chain, pool and mining status",
	RunE:  statusRun,
}

func init() {
	rootCmd.AddCommand(mineCmd, statusCmd)
	mineCmd.Flags().StringVarP(&mineMiner, "miner", "m", "", "Address credited with the reward.")
	mineCmd.Flags().IntVarP(&mineMax, "max", "n", 0, "Maximum transactions to package, 0 uses the node default.")
}

func mineRun(cmd *cobra.Command, args []string) error {
	req := map[string]any{
		"miner_address":    mineMiner,
		"max_transactions": mineMax,
	}

	var result map[string]any
	if err := call(newClient(), http.MethodPost, "/v1/mining/mine", req, &result); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), result)
}

func statusRun(cmd *cobra.Command, args []string) error {
	client := newClient()

	status := make(map[string]any)
	for key, path := range map[string]string{
		"chain":  "/v1/chain/info",
		"pool":   "/v1/pool/status",
		"mining": "/v1/mining/status",
	} {
		var result map[string]any
		if err := call(client, http.MethodGet, path, nil, &result); err != nil {
			return err
		}
		status[key] = result
	}

	return printJSON(cmd.OutOrStdout(), status)
}
