package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
)

// Validate recalculates the stored chain and prints a summary.
func Validate(ctx context.Context, env Env) error {
	st, err := env.state()
	if err != nil {
		return err
	}

	if err := st.ValidateChain(ctx); err != nil {
		return err
	}

	page, err := st.QueryBlocks(ctx, 1, 1)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Out, "Chain is valid: %d blocks\n", page.Total)
	if len(page.Items) > 0 {
		fmt.Fprintf(env.Out, "Latest: %d %s\n", page.Items[0].Header.Number, page.Items[0].Hash)
	}

	return nil
}

// Transaction prints a pending or confirmed transaction.
func Transaction(ctx context.Context, env Env, hash string) error {
	if hash == "" {
		return errors.New("transaction hash is required")
	}

	st, err := env.state()
	if err != nil {
		return err
	}

	lookup, err := st.QueryTransaction(ctx, hash)
	if err != nil {
		return err
	}

	tx := lookup.Transaction
	fmt.Fprintf(env.Out, "Hash: %s  Status: %s\n", tx.Hash, lookup.Status)
	fmt.Fprintf(env.Out, "Type: %s  From: %s  To: %s  Amount: %s  Fee: %s\n", tx.Type, tx.From, tx.To, tx.Amount, tx.GasFee)
	if tx.BlockHash != "" {
		fmt.Fprintf(env.Out, "Block: %d %s  Position: %d\n", tx.BlockNumber, tx.BlockHash, tx.Position)
	}

	return nil
}

// Pending prints the pool in packaging order.
func Pending(ctx context.Context, env Env) error {
	return env.Storer.View(ctx, func(s storage.Session) error {
		n, err := s.CountPending(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(env.Out, "Pending: 0")
			return nil
		}

		trans, err := s.PeekPending(ctx, n)
		if err != nil {
			return err
		}

		for _, tx := range trans {
			fmt.Fprintf(env.Out, "Hash: %s  Type: %s  From: %s  To: %s  Amount: %s  Priority: %.4f\n",
				tx.Hash, tx.Type, tx.From, tx.To, tx.Amount, tx.Priority)
		}
		fmt.Fprintf(env.Out, "Pending: %d\n", len(trans))

		return nil
	})
}
