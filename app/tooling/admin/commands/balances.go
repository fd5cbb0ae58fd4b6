package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/chaos0211/block-dt/foundation/blockchain/balance"
)

// Balances replays the stored chain and prints the resulting balances.
func Balances(ctx context.Context, env Env, address string) error {
	sheet := balance.NewSheet(nil)
	if err := sheet.Load(ctx, env.Storer); err != nil {
		return err
	}

	if address != "" {
		value, exists := sheet.Balance(address)
		if !exists {
			return fmt.Errorf("address %q has no ledger activity", address)
		}
		fmt.Fprintf(env.Out, "Address: %s  Balance: %s\n", address, value)
		return nil
	}

	bals := sheet.Copy()
	addrs := make([]string, 0, len(bals))
	for addr := range bals {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		fmt.Fprintf(env.Out, "Address: %s  Balance: %s\n", addr, bals[addr])
	}

	return nil
}
