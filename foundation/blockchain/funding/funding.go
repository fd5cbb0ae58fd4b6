// Package funding maintains the project and donation aggregates that are
// updated when their transactions are confirmed on the ledger.
package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/shopspring/decimal"
)

// Set of error variables for the funding aggregates.
var (
	ErrReferencedEntityMissing = errors.New("referenced entity missing")
	ErrInvalidTransition       = errors.New("invalid status transition")
)

// =============================================================================

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

// Set of project states.
const (
	ProjectPending       ProjectStatus = "pending"
	ProjectApproved      ProjectStatus = "approved"
	ProjectRejected      ProjectStatus = "rejected"
	ProjectAwaitingChain ProjectStatus = "awaiting_chain"
	ProjectOnChain       ProjectStatus = "on_chain"
	ProjectCompleted     ProjectStatus = "completed"
)

// Project is a fundraising campaign registered on the ledger.
type Project struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Owner         string          `json:"owner"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Status        ProjectStatus   `json:"status"`
	ChainAddress  string          `json:"chain_address,omitempty"`
	ChainTxHash   string          `json:"chain_tx_hash,omitempty"`
	OnChainAt     int64           `json:"on_chain_at,omitempty"`
	CreatedAt     int64           `json:"created_at"`
	UpdatedAt     int64           `json:"updated_at"`
}

// Review moves a pending project to approved or rejected.
func (p Project) Review(approve bool, now int64) (Project, error) {
	if p.Status != ProjectPending {
		return Project{}, fmt.Errorf("%w: project %s is %s", ErrInvalidTransition, p.ID, p.Status)
	}

	p.Status = ProjectRejected
	if approve {
		p.Status = ProjectApproved
	}
	p.UpdatedAt = now

	return p, nil
}

// AwaitChain moves an approved project to the state where its registration
// transaction waits in the pool.
func (p Project) AwaitChain(chainAddress string, txHash string, now int64) (Project, error) {
	if p.Status != ProjectApproved {
		return Project{}, fmt.Errorf("%w: project %s is %s", ErrInvalidTransition, p.ID, p.Status)
	}

	p.Status = ProjectAwaitingChain
	p.ChainAddress = chainAddress
	p.ChainTxHash = txHash
	p.UpdatedAt = now

	return p, nil
}

// AcceptsDonations reports if the project can receive donations.
func (p Project) AcceptsDonations() bool {
	return p.Status == ProjectOnChain
}

// Progress reports how far a project is toward its target.
type Progress struct {
	ProjectID     string          `json:"project_id"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	Percentage    decimal.Decimal `json:"progress_percentage"`
	DonationCount int             `json:"donation_count"`
	Status        ProjectStatus   `json:"status"`
}

var hundred = decimal.NewFromInt(100)

// Progress computes the funded percentage of the project, rounded to two
// places. A project without a positive target is at zero.
func (p Project) Progress(donationCount int) Progress {
	pct := decimal.Zero
	if p.TargetAmount.IsPositive() {
		pct = p.CurrentAmount.Div(p.TargetAmount).Mul(hundred).Round(2)
	}

	return Progress{
		ProjectID:     p.ID,
		CurrentAmount: p.CurrentAmount,
		TargetAmount:  p.TargetAmount,
		Percentage:    pct,
		DonationCount: donationCount,
		Status:        p.Status,
	}
}

// =============================================================================

// DonationStatus represents the lifecycle state of a donation.
type DonationStatus string

// Set of donation states.
const (
	DonationPending   DonationStatus = "pending"
	DonationInPool    DonationStatus = "in_pool"
	DonationConfirmed DonationStatus = "confirmed"
	DonationFailed    DonationStatus = "failed"
)

// Donation is an amount given to a project, confirmed through the ledger.
type Donation struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Donor       string          `json:"donor"`
	Amount      decimal.Decimal `json:"amount"`
	GasFee      decimal.Decimal `json:"gas_fee"`
	Status      DonationStatus  `json:"status"`
	TxHash      string          `json:"tx_hash,omitempty"`
	BlockHash   string          `json:"block_hash,omitempty"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	ConfirmedAt int64           `json:"confirmed_at,omitempty"`
	CreatedAt   int64           `json:"created_at"`
}

// DonationTotals summarizes a set of donations. Count includes every
// donation while Confirmed and ConfirmedAmount only cover the confirmed ones.
type DonationTotals struct {
	Count           int
	Confirmed       int
	ConfirmedAmount decimal.Decimal
}

// Add folds one donation into the totals.
func (dt DonationTotals) Add(dnt Donation) DonationTotals {
	dt.Count++
	if dnt.Status == DonationConfirmed {
		dt.Confirmed++
		dt.ConfirmedAmount = dt.ConfirmedAmount.Add(dnt.Amount)
	}
	return dt
}

// Average returns the mean confirmed donation, zero when none is confirmed.
func (dt DonationTotals) Average() decimal.Decimal {
	if dt.Confirmed == 0 {
		return decimal.Zero
	}
	return dt.ConfirmedAmount.Div(decimal.NewFromInt(int64(dt.Confirmed))).Round(8)
}

// =============================================================================

// Storer interface declares the behavior this package needs to persist and
// retrieve data.
type Storer interface {
	InsertProject(ctx context.Context, prj Project) error
	UpdateProject(ctx context.Context, prj Project) error
	QueryProjectByID(ctx context.Context, projectID string) (Project, error)
	InsertDonation(ctx context.Context, dnt Donation) error
	UpdateDonation(ctx context.Context, dnt Donation) error
	QueryDonationByID(ctx context.Context, donationID string) (Donation, error)
	QueryDonationByTxHash(ctx context.Context, txHash string) (Donation, error)
}

// Confirmation identifies the block that confirmed a donation transaction.
type Confirmation struct {
	DonationID  string
	TxHash      string
	BlockHash   string
	BlockNumber uint64
	ConfirmedAt int64
}

// ConfirmDonation marks the donation confirmed in the specified block and adds
// its amount to the project's funding total. The donation is located by the
// hash of the transaction that was recorded for it, so a transaction that
// only names a donation id can't confirm it. A donation that is already
// confirmed is left untouched.
func ConfirmDonation(ctx context.Context, s Storer, c Confirmation) error {
	dnt, err := findDonation(ctx, s, c)
	if err != nil {
		return err
	}

	if dnt.Status == DonationConfirmed {
		return nil
	}

	dnt.Status = DonationConfirmed
	dnt.TxHash = c.TxHash
	dnt.BlockHash = c.BlockHash
	dnt.BlockNumber = c.BlockNumber
	dnt.ConfirmedAt = c.ConfirmedAt

	if err := s.UpdateDonation(ctx, dnt); err != nil {
		return fmt.Errorf("update donation[%s]: %w", dnt.ID, err)
	}

	prj, err := s.QueryProjectByID(ctx, dnt.ProjectID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: project[%s] of donation[%s]", ErrReferencedEntityMissing, dnt.ProjectID, dnt.ID)
		}
		return fmt.Errorf("query project[%s]: %w", dnt.ProjectID, err)
	}

	prj.CurrentAmount = prj.CurrentAmount.Add(dnt.Amount)
	prj.UpdatedAt = c.ConfirmedAt

	if err := s.UpdateProject(ctx, prj); err != nil {
		return fmt.Errorf("update project[%s]: %w", prj.ID, err)
	}

	return nil
}

// Activation identifies the confirmed registration of a project.
type Activation struct {
	ProjectID    string
	ChainAddress string
	TxHash       string
	ActivatedAt  int64
}

// ActivateProject moves a project awaiting chain entry to on chain. Only the
// registration transaction recorded on the project can activate it. It
// returns false when the project is in any other state, so replaying the
// same confirmation is harmless.
func ActivateProject(ctx context.Context, s Storer, a Activation) (bool, error) {
	prj, err := s.QueryProjectByID(ctx, a.ProjectID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, fmt.Errorf("%w: project[%s]", ErrReferencedEntityMissing, a.ProjectID)
		}
		return false, fmt.Errorf("query project[%s]: %w", a.ProjectID, err)
	}

	if prj.Status != ProjectAwaitingChain {
		return false, nil
	}

	if prj.ChainTxHash != a.TxHash {
		return false, fmt.Errorf("%w: project[%s] waits for tx[%s], got tx[%s]", ErrReferencedEntityMissing, prj.ID, prj.ChainTxHash, a.TxHash)
	}

	prj.Status = ProjectOnChain
	prj.ChainTxHash = a.TxHash
	prj.OnChainAt = a.ActivatedAt
	prj.UpdatedAt = a.ActivatedAt
	if a.ChainAddress != "" {
		prj.ChainAddress = a.ChainAddress
	}

	if err := s.UpdateProject(ctx, prj); err != nil {
		return false, fmt.Errorf("update project[%s]: %w", prj.ID, err)
	}

	return true, nil
}

// =============================================================================

func findDonation(ctx context.Context, s Storer, c Confirmation) (Donation, error) {
	dnt, err := s.QueryDonationByTxHash(ctx, c.TxHash)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Donation{}, fmt.Errorf("%w: donation[%s] tx[%s]", ErrReferencedEntityMissing, c.DonationID, c.TxHash)
		}
		return Donation{}, fmt.Errorf("query donation by tx[%s]: %w", c.TxHash, err)
	}

	if c.DonationID != "" && c.DonationID != dnt.ID {
		return Donation{}, fmt.Errorf("%w: tx[%s] belongs to donation[%s], not donation[%s]", ErrReferencedEntityMissing, c.TxHash, dnt.ID, c.DonationID)
	}

	return dnt, nil
}
