package errs

import (
	"errors"
	"net/http"

	"github.com/chaos0211/block-dt/business/core/campaign"
	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/chaos0211/block-dt/foundation/blockchain/mempool"
	"github.com/chaos0211/block-dt/foundation/blockchain/state"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
)

// statuses maps the errors of the ledger packages to the status the client
// receives. The first match wins.
var statuses = []struct {
	err    error
	status int
}{
	{mempool.ErrDuplicateTransaction, http.StatusConflict},
	{mempool.ErrInvalidAmount, http.StatusBadRequest},
	{mempool.ErrInvalidTransaction, http.StatusBadRequest},
	{mempool.ErrInvalidPage, http.StatusBadRequest},
	{state.ErrMiningInProgress, http.StatusConflict},
	{state.ErrNoPendingTransactions, http.StatusUnprocessableEntity},
	{state.ErrMiningTimeout, http.StatusServiceUnavailable},
	{state.ErrMiningCommitFailed, http.StatusInternalServerError},
	{funding.ErrInvalidTransition, http.StatusConflict},
	{campaign.ErrProjectNotAcceptingDonations, http.StatusConflict},
	{storage.ErrNotFound, http.StatusNotFound},
}

// FromLedger wraps the known ledger errors in a Trusted error with the
// matching status. Any other error is returned as is.
func FromLedger(err error) error {
	if err == nil || IsTrusted(err) {
		return err
	}

	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return NewTrusted(err, s.status)
		}
	}

	return err
}
