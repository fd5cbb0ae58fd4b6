package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
)

// synchronize applies a confirmed transaction to the domain records it
// refers to. A transaction whose record can't be found is logged and
// skipped, it never stops the block from being committed.
func (s *State) synchronize(ctx context.Context, ss storage.Session, tx database.ConfirmedTx) error {
	var err error

	switch tx.Type {
	case database.TxDonation:
		err = funding.ConfirmDonation(ctx, ss, funding.Confirmation{
			DonationID:  tx.Payload.String("donation_id"),
			TxHash:      tx.Hash,
			BlockHash:   tx.BlockHash,
			BlockNumber: tx.BlockNumber,
			ConfirmedAt: tx.ConfirmedAt,
		})
		if err == nil {
			s.evHandler("viewer: donation: confirmed: tx[%s]: blk[%d]", tx.Hash, tx.BlockNumber)
		}

	case database.TxProjectCreation:
		var activated bool
		activated, err = funding.ActivateProject(ctx, ss, funding.Activation{
			ProjectID:    tx.Payload.String("project_id"),
			ChainAddress: tx.Payload.String("chain_address"),
			TxHash:       tx.Hash,
			ActivatedAt:  tx.ConfirmedAt,
		})
		if activated {
			s.evHandler("viewer: project: on chain: tx[%s]: blk[%d]", tx.Hash, tx.BlockNumber)
		}

	default:
		return nil
	}

	if err != nil {
		if errors.Is(err, funding.ErrReferencedEntityMissing) {
			s.evHandler("state: synchronize: WARNING: tx[%s]: %s", tx.Hash, err)
			return nil
		}
		return fmt.Errorf("synchronize tx[%s]: %w", tx.Hash, err)
	}

	return nil
}
