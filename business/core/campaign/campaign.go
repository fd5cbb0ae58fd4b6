// Package campaign provides the core business API for fundraising projects
// and the donations made to them. Every state change that needs the ledger
// submits its transaction in the same unit of work as the record update.
package campaign

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chaos0211/block-dt/business/sys/validate"
	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/chaos0211/block-dt/foundation/blockchain/mempool"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlatformAddress receives the registration transaction of every project.
const PlatformAddress = "system"

// DonationGasFee is the fee charged on every donation transaction.
var DonationGasFee = decimal.RequireFromString("0.01")

// ErrProjectNotAcceptingDonations is returned when a donation is made to a
// project that is not on chain.
var ErrProjectNotAcceptingDonations = errors.New("project is not accepting donations")

// NewProject contains the information needed to register a project.
type NewProject struct {
	Title        string          `json:"title" validate:"required"`
	Owner        string          `json:"owner" validate:"required"`
	TargetAmount decimal.Decimal `json:"target_amount" validate:"gt=0"`
}

// NewDonation contains the information needed to make a donation.
type NewDonation struct {
	ProjectID string          `json:"project_id" validate:"required"`
	Donor     string          `json:"donor" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
}

// Core manages the set of APIs for project and donation access.
type Core struct {
	storer storage.Storer
	pool   *mempool.Mempool
	now    func() time.Time
}

// NewCore constructs a core for project and donation api access.
func NewCore(storer storage.Storer, pool *mempool.Mempool) *Core {
	return &Core{
		storer: storer,
		pool:   pool,
		now:    time.Now,
	}
}

// CreateProject registers a new project waiting for review.
func (c *Core) CreateProject(ctx context.Context, np NewProject) (funding.Project, error) {
	if err := validate.Check(np); err != nil {
		return funding.Project{}, fmt.Errorf("validating data: %w", err)
	}

	now := c.now().UnixMilli()

	prj := funding.Project{
		ID:            uuid.NewString(),
		Title:         np.Title,
		Owner:         np.Owner,
		TargetAmount:  np.TargetAmount,
		CurrentAmount: decimal.Zero,
		Status:        funding.ProjectPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := c.storer.WithinTran(ctx, func(s storage.Session) error {
		return s.InsertProject(ctx, prj)
	})
	if err != nil {
		return funding.Project{}, fmt.Errorf("create project: %w", err)
	}

	return prj, nil
}

// ApproveProject records the review of a pending project.
func (c *Core) ApproveProject(ctx context.Context, projectID string, approve bool) (funding.Project, error) {
	var prj funding.Project

	err := c.storer.WithinTran(ctx, func(s storage.Session) error {
		current, err := s.QueryProjectByID(ctx, projectID)
		if err != nil {
			return err
		}

		if prj, err = current.Review(approve, c.now().UnixMilli()); err != nil {
			return err
		}

		return s.UpdateProject(ctx, prj)
	})
	if err != nil {
		return funding.Project{}, fmt.Errorf("approve project[%s]: %w", projectID, err)
	}

	return prj, nil
}

// RequestOnChain submits the registration transaction of an approved
// project. The project becomes on chain once that transaction is mined.
func (c *Core) RequestOnChain(ctx context.Context, projectID string) (funding.Project, error) {
	var prj funding.Project

	err := c.storer.WithinTran(ctx, func(s storage.Session) error {
		current, err := s.QueryProjectByID(ctx, projectID)
		if err != nil {
			return err
		}

		if current.Status != funding.ProjectApproved {
			return fmt.Errorf("%w: project %s is %s", funding.ErrInvalidTransition, current.ID, current.Status)
		}

		now := c.now()
		address := ChainAddress(current.ID, now)

		tx, err := c.pool.SubmitWithin(ctx, s, mempool.NewTx{
			Type:   database.TxProjectCreation,
			From:   current.Owner,
			To:     PlatformAddress,
			Amount: decimal.Zero,
			GasFee: decimal.NewNullDecimal(decimal.Zero),
			Payload: database.Payload{
				"project_id":    current.ID,
				"chain_address": address,
				"title":         current.Title,
				"target_amount": current.TargetAmount.String(),
			},
			TimeStamp: now.UnixMilli(),
		})
		if err != nil {
			return err
		}

		if prj, err = current.AwaitChain(address, tx.Hash, now.UnixMilli()); err != nil {
			return err
		}

		return s.UpdateProject(ctx, prj)
	})
	if err != nil {
		return funding.Project{}, fmt.Errorf("request on chain project[%s]: %w", projectID, err)
	}

	return prj, nil
}

// Donate records a donation to an on chain project and submits its
// transaction to the pool.
func (c *Core) Donate(ctx context.Context, nd NewDonation) (funding.Donation, error) {
	if !nd.Amount.IsPositive() {
		return funding.Donation{}, fmt.Errorf("%w: donation of %s", mempool.ErrInvalidAmount, nd.Amount)
	}

	if err := validate.Check(nd); err != nil {
		return funding.Donation{}, fmt.Errorf("validating data: %w", err)
	}

	var dnt funding.Donation

	err := c.storer.WithinTran(ctx, func(s storage.Session) error {
		prj, err := s.QueryProjectByID(ctx, nd.ProjectID)
		if err != nil {
			return err
		}

		if !prj.AcceptsDonations() {
			return fmt.Errorf("%w: project %s is %s", ErrProjectNotAcceptingDonations, prj.ID, prj.Status)
		}

		now := c.now().UnixMilli()

		dnt = funding.Donation{
			ID:        uuid.NewString(),
			ProjectID: prj.ID,
			Donor:     nd.Donor,
			Amount:    nd.Amount,
			GasFee:    DonationGasFee,
			Status:    funding.DonationPending,
			CreatedAt: now,
		}

		if err := s.InsertDonation(ctx, dnt); err != nil {
			return err
		}

		tx, err := c.pool.SubmitWithin(ctx, s, mempool.NewTx{
			Type:   database.TxDonation,
			From:   nd.Donor,
			To:     prj.ChainAddress,
			Amount: nd.Amount,
			GasFee: decimal.NewNullDecimal(DonationGasFee),
			Payload: database.Payload{
				"donation_id": dnt.ID,
				"project_id":  prj.ID,
			},
			TimeStamp: now,
		})
		if err != nil {
			return err
		}

		dnt.Status = funding.DonationInPool
		dnt.TxHash = tx.Hash

		return s.UpdateDonation(ctx, dnt)
	})
	if err != nil {
		return funding.Donation{}, fmt.Errorf("donate to project[%s]: %w", nd.ProjectID, err)
	}

	return dnt, nil
}

// QueryProject returns the project with the specified id.
func (c *Core) QueryProject(ctx context.Context, projectID string) (funding.Project, error) {
	var prj funding.Project

	err := c.storer.View(ctx, func(s storage.Session) error {
		var err error
		prj, err = s.QueryProjectByID(ctx, projectID)
		return err
	})
	if err != nil {
		return funding.Project{}, fmt.Errorf("query project[%s]: %w", projectID, err)
	}

	return prj, nil
}

// QueryDonation returns the donation with the specified id.
func (c *Core) QueryDonation(ctx context.Context, donationID string) (funding.Donation, error) {
	var dnt funding.Donation

	err := c.storer.View(ctx, func(s storage.Session) error {
		var err error
		dnt, err = s.QueryDonationByID(ctx, donationID)
		return err
	})
	if err != nil {
		return funding.Donation{}, fmt.Errorf("query donation[%s]: %w", donationID, err)
	}

	return dnt, nil
}

// QueryProjectProgress returns how far the specified project is toward its
// target along with the number of donations made to it.
func (c *Core) QueryProjectProgress(ctx context.Context, projectID string) (funding.Progress, error) {
	var prg funding.Progress

	err := c.storer.View(ctx, func(s storage.Session) error {
		prj, err := s.QueryProjectByID(ctx, projectID)
		if err != nil {
			return err
		}

		totals, err := s.QueryDonationTotals(ctx, projectID)
		if err != nil {
			return err
		}

		prg = prj.Progress(totals.Count)
		return nil
	})
	if err != nil {
		return funding.Progress{}, fmt.Errorf("query progress project[%s]: %w", projectID, err)
	}

	return prg, nil
}

// Statistics summarizes the confirmed donations of one project or of all.
type Statistics struct {
	ProjectID     string          `json:"project_id,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalCount    int             `json:"total_count"`
	AverageAmount decimal.Decimal `json:"average_amount"`
}

// QueryDonationStatistics sums the confirmed donations of the specified
// project. An empty projectID covers every project. A project that doesn't
// exist is reported as not found.
func (c *Core) QueryDonationStatistics(ctx context.Context, projectID string) (Statistics, error) {
	var totals funding.DonationTotals

	err := c.storer.View(ctx, func(s storage.Session) error {
		if projectID != "" {
			if _, err := s.QueryProjectByID(ctx, projectID); err != nil {
				return err
			}
		}

		var err error
		totals, err = s.QueryDonationTotals(ctx, projectID)
		return err
	})
	if err != nil {
		return Statistics{}, fmt.Errorf("query donation statistics project[%s]: %w", projectID, err)
	}

	stats := Statistics{
		ProjectID:     projectID,
		TotalAmount:   totals.ConfirmedAmount,
		TotalCount:    totals.Confirmed,
		AverageAmount: totals.Average(),
	}

	return stats, nil
}

// ChainAddress derives the ledger address of a project from its id and the
// time it was put on chain.
func ChainAddress(projectID string, t time.Time) string {
	sum := sha256.Sum256([]byte(projectID + strconv.FormatInt(t.Unix(), 10)))
	return common.BytesToAddress(sum[:]).Hex()
}
