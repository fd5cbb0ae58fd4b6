package sqldb

import (
	"context"
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/shopspring/decimal"
)

const projectColumns = `id, title, owner, target_amount, current_amount, status, chain_address, chain_tx_hash, on_chain_at, created_at, updated_at`

func (s *session) InsertProject(ctx context.Context, prj funding.Project) error {
	const q = `
	INSERT INTO projects
		(id, title, owner, target_amount, current_amount, status, chain_address, chain_tx_hash, on_chain_at, created_at, updated_at)
	VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	r := toProjectRow(prj)

	if _, err := s.exec(ctx, q, r.ID, r.Title, r.Owner, r.TargetAmount, r.CurrentAmount, r.Status, r.ChainAddress, r.ChainTxHash, r.OnChainAt, r.CreatedAt, r.UpdatedAt); err != nil {
		return fmt.Errorf("inserting project[%s]: %w", prj.ID, err)
	}

	return nil
}

func (s *session) UpdateProject(ctx context.Context, prj funding.Project) error {
	const q = `
	UPDATE projects SET
		title = ?,
		owner = ?,
		target_amount = ?,
		current_amount = ?,
		status = ?,
		chain_address = ?,
		chain_tx_hash = ?,
		on_chain_at = ?,
		updated_at = ?
	WHERE id = ?`

	r := toProjectRow(prj)

	res, err := s.exec(ctx, q, r.Title, r.Owner, r.TargetAmount, r.CurrentAmount, r.Status, r.ChainAddress, r.ChainTxHash, r.OnChainAt, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("updating project[%s]: %w", prj.ID, err)
	}

	return affected(res)
}

func (s *session) QueryProjectByID(ctx context.Context, projectID string) (funding.Project, error) {
	const q = `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	var r projectRow
	if err := s.queryRow(ctx, q, projectID).Scan(r.dest()...); err != nil {
		return funding.Project{}, notFound(err)
	}

	return r.toProject()
}

// =============================================================================

const donationColumns = `id, project_id, donor, amount, gas_fee, status, tx_hash, block_hash, block_number, confirmed_at, created_at`

func (s *session) InsertDonation(ctx context.Context, dnt funding.Donation) error {
	const q = `
	INSERT INTO donations
		(id, project_id, donor, amount, gas_fee, status, tx_hash, block_hash, block_number, confirmed_at, created_at)
	VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	r := toDonationRow(dnt)

	if _, err := s.exec(ctx, q, r.ID, r.ProjectID, r.Donor, r.Amount, r.GasFee, r.Status, r.TxHash, r.BlockHash, r.BlockNumber, r.ConfirmedAt, r.CreatedAt); err != nil {
		return fmt.Errorf("inserting donation[%s]: %w", dnt.ID, err)
	}

	return nil
}

func (s *session) UpdateDonation(ctx context.Context, dnt funding.Donation) error {
	const q = `
	UPDATE donations SET
		status = ?,
		tx_hash = ?,
		block_hash = ?,
		block_number = ?,
		confirmed_at = ?
	WHERE id = ?`

	r := toDonationRow(dnt)

	res, err := s.exec(ctx, q, r.Status, r.TxHash, r.BlockHash, r.BlockNumber, r.ConfirmedAt, r.ID)
	if err != nil {
		return fmt.Errorf("updating donation[%s]: %w", dnt.ID, err)
	}

	return affected(res)
}

func (s *session) QueryDonationByID(ctx context.Context, donationID string) (funding.Donation, error) {
	const q = `SELECT ` + donationColumns + ` FROM donations WHERE id = ?`

	return s.queryDonation(ctx, q, donationID)
}

func (s *session) QueryDonationByTxHash(ctx context.Context, txHash string) (funding.Donation, error) {
	if txHash == "" {
		return funding.Donation{}, storage.ErrNotFound
	}

	const q = `SELECT ` + donationColumns + ` FROM donations WHERE tx_hash = ?`

	return s.queryDonation(ctx, q, txHash)
}

// QueryDonationTotals sums in code since amounts are stored as exact decimal
// strings.
func (s *session) QueryDonationTotals(ctx context.Context, projectID string) (funding.DonationTotals, error) {
	q := `SELECT status, amount FROM donations`
	var args []any
	if projectID != "" {
		q += ` WHERE project_id = ?`
		args = append(args, projectID)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return funding.DonationTotals{}, err
	}
	defer rows.Close()

	totals := funding.DonationTotals{ConfirmedAmount: decimal.Zero}

	for rows.Next() {
		var status, amount string
		if err := rows.Scan(&status, &amount); err != nil {
			return funding.DonationTotals{}, err
		}

		a, err := decimal.NewFromString(amount)
		if err != nil {
			return funding.DonationTotals{}, fmt.Errorf("parsing amount: %w", err)
		}

		totals = totals.Add(funding.Donation{Status: funding.DonationStatus(status), Amount: a})
	}

	return totals, rows.Err()
}

func (s *session) queryDonation(ctx context.Context, query string, args ...any) (funding.Donation, error) {
	var r donationRow
	if err := s.queryRow(ctx, query, args...).Scan(r.dest()...); err != nil {
		return funding.Donation{}, notFound(err)
	}

	return r.toDonation()
}

// =============================================================================

// affected turns an update that matched no rows into a not found error.
func affected(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}
