package cmd

import (
	"fmt"
	"net/http"

	"github.com/chaos0211/block-dt/foundation/blockchain/merkle"
	"github.com/chaos0211/block-dt/foundation/blockchain/state"
	"github.com/spf13/cobra"
)

var txProof bool

var txCmd = &cobra.Command{
	Use:   "tx <hash>",
	Short: "Look up a transaction by hash",
	Args:  cobra.ExactArgs(1),
	RunE:  txRun,
}

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.Flags().BoolVar(&txProof, "proof", false, "Fetch the merkle proof and verify it locally.")
}

func txRun(cmd *cobra.Command, args []string) error {
	client := newClient()

	if !txProof {
		var result map[string]any
		if err := call(client, http.MethodGet, "/v1/tx/"+args[0], nil, &result); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	}

	var proof state.Proof
	if err := call(client, http.MethodGet, "/v1/tx/"+args[0]+"/proof", nil, &proof); err != nil {
		return err
	}

	if !merkle.VerifyProof(proof.TxHash, proof.Proof, proof.Order, proof.MerkleRoot) {
		return fmt.Errorf("proof for tx[%s] does not match merkle root %s of block %d", proof.TxHash, proof.MerkleRoot, proof.BlockNumber)
	}
	proof.Verified = true

	return printJSON(cmd.OutOrStdout(), proof)
}
