package cmd

import (
	"fmt"
	"net/http"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/genesis"
	"github.com/chaos0211/block-dt/foundation/blockchain/state"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var verifyQuiet bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Download the chain block by block and validate it locally",
	RunE:  verifyRun,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVarP(&verifyQuiet, "quiet", "q", false, "Don't render the progress bar.")
}

type verifyResult struct {
	Blocks       int    `json:"blocks"`
	Transactions int    `json:"transactions"`
	LatestHash   string `json:"latest_hash"`
	Valid        bool   `json:"valid"`
}

func verifyRun(cmd *cobra.Command, args []string) error {
	client := newClient()

	var gen genesis.Genesis
	if err := call(client, http.MethodGet, "/v1/genesis/list", nil, &gen); err != nil {
		return err
	}

	var info state.ChainInfo
	if err := call(client, http.MethodGet, "/v1/chain/info", nil, &info); err != nil {
		return err
	}

	if info.LatestBlock == nil {
		return printJSON(cmd.OutOrStdout(), verifyResult{Valid: true})
	}

	latest := info.LatestBlock.Header.Number
	if latest < gen.StartNumber {
		return fmt.Errorf("latest block %d is below the genesis number %d", latest, gen.StartNumber)
	}

	total := int64(latest - gen.StartNumber + 1)
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription("Verifying blocks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetVisibility(!verifyQuiet),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	if err := bar.RenderBlank(); err != nil {
		return err
	}

	result := verifyResult{Valid: true}
	var prev database.Block

	for number := gen.StartNumber; number <= latest; number++ {
		var bd database.BlockData
		if err := call(client, http.MethodGet, fmt.Sprintf("/v1/blocks/number/%d", number), nil, &bd); err != nil {
			return err
		}

		if err := validateBlock(gen.StartNumber, prev, bd); err != nil {
			_ = bar.Exit()
			return fmt.Errorf("block %d: %w", number, err)
		}

		prev = bd.Block
		result.Blocks++
		result.Transactions += len(bd.Trans)
		result.LatestHash = bd.Hash

		if err := bar.Add(1); err != nil {
			return err
		}
	}

	if err := bar.Finish(); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), result)
}

// validateBlock checks a downloaded block against its parent using the same
// rules the node applies when it validates its own chain.
func validateBlock(start uint64, prev database.Block, bd database.BlockData) error {
	if bd.Header.Number == start {
		return bd.ValidateGenesis()
	}

	trans := make([]database.BlockTx, len(bd.Trans))
	for i, tx := range bd.Trans {
		if tx.Position != i {
			return fmt.Errorf("transaction %s out of order, position %d, index %d", tx.Hash, tx.Position, i)
		}
		trans[i] = tx.BlockTx
	}

	return bd.ValidateBlock(prev, trans, nil)
}
