package funding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/shopspring/decimal"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// store is an in memory implementation of funding.Storer.
type store struct {
	projects  map[string]funding.Project
	donations map[string]funding.Donation
}

func newStore() *store {
	return &store{
		projects:  make(map[string]funding.Project),
		donations: make(map[string]funding.Donation),
	}
}

func (s *store) InsertProject(ctx context.Context, prj funding.Project) error {
	s.projects[prj.ID] = prj
	return nil
}

func (s *store) UpdateProject(ctx context.Context, prj funding.Project) error {
	if _, exists := s.projects[prj.ID]; !exists {
		return database.ErrNotFound
	}
	s.projects[prj.ID] = prj
	return nil
}

func (s *store) QueryProjectByID(ctx context.Context, projectID string) (funding.Project, error) {
	prj, exists := s.projects[projectID]
	if !exists {
		return funding.Project{}, database.ErrNotFound
	}
	return prj, nil
}

func (s *store) InsertDonation(ctx context.Context, dnt funding.Donation) error {
	s.donations[dnt.ID] = dnt
	return nil
}

func (s *store) UpdateDonation(ctx context.Context, dnt funding.Donation) error {
	if _, exists := s.donations[dnt.ID]; !exists {
		return database.ErrNotFound
	}
	s.donations[dnt.ID] = dnt
	return nil
}

func (s *store) QueryDonationByID(ctx context.Context, donationID string) (funding.Donation, error) {
	dnt, exists := s.donations[donationID]
	if !exists {
		return funding.Donation{}, database.ErrNotFound
	}
	return dnt, nil
}

func (s *store) QueryDonationByTxHash(ctx context.Context, txHash string) (funding.Donation, error) {
	for _, dnt := range s.donations {
		if dnt.TxHash == txHash {
			return dnt, nil
		}
	}
	return funding.Donation{}, database.ErrNotFound
}

// =============================================================================

func Test_ConfirmDonation(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to confirm donations.")
	{
		s := newStore()
		s.projects["P"] = funding.Project{ID: "P", Status: funding.ProjectOnChain, TargetAmount: decimal.NewFromInt(1000), CurrentAmount: decimal.Zero}
		s.donations["D1"] = funding.Donation{ID: "D1", ProjectID: "P", Amount: decimal.NewFromInt(50), Status: funding.DonationInPool, TxHash: "tx1"}
		s.donations["D2"] = funding.Donation{ID: "D2", ProjectID: "P", Amount: decimal.NewFromInt(25), Status: funding.DonationInPool, TxHash: "tx2"}
		s.donations["D3"] = funding.Donation{ID: "D3", ProjectID: "P", Amount: decimal.NewFromInt(40), Status: funding.DonationInPool, TxHash: "tx3"}

		t.Logf("\tTest 0:\tWhen confirming a donation by id.")
		{
			c := funding.Confirmation{DonationID: "D1", TxHash: "tx1", BlockHash: "blk", BlockNumber: 2, ConfirmedAt: 100}
			if err := funding.ConfirmDonation(ctx, s, c); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to confirm the donation: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to confirm the donation.", success)

			dnt := s.donations["D1"]
			if dnt.Status != funding.DonationConfirmed || dnt.BlockHash != "blk" || dnt.BlockNumber != 2 || dnt.ConfirmedAt != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould stamp the donation with the block: %+v", failed, dnt)
			}
			t.Logf("\t%s\tTest 0:\tShould stamp the donation with the block.", success)

			if got := s.projects["P"].CurrentAmount; !got.Equal(decimal.NewFromInt(50)) {
				t.Fatalf("\t%s\tTest 0:\tShould add the amount to the project, got %s", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould add the amount to the project.", success)

			if err := funding.ConfirmDonation(ctx, s, c); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to replay the confirmation: %s", failed, err)
			}
			if got := s.projects["P"].CurrentAmount; !got.Equal(decimal.NewFromInt(50)) {
				t.Fatalf("\t%s\tTest 0:\tShould not add the amount twice, got %s", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould not add the amount twice.", success)
		}

		t.Logf("\tTest 1:\tWhen confirming a donation by transaction hash.")
		{
			c := funding.Confirmation{TxHash: "tx2", BlockHash: "blk", BlockNumber: 2, ConfirmedAt: 100}
			if err := funding.ConfirmDonation(ctx, s, c); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to confirm the donation: %s", failed, err)
			}
			if got := s.projects["P"].CurrentAmount; !got.Equal(decimal.NewFromInt(75)) {
				t.Fatalf("\t%s\tTest 1:\tShould add the amount to the project, got %s", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould find the donation by its transaction hash.", success)
		}

		t.Logf("\tTest 2:\tWhen the donation does not exist.")
		{
			c := funding.Confirmation{DonationID: "missing", TxHash: "nope"}
			err := funding.ConfirmDonation(ctx, s, c)
			if !errors.Is(err, funding.ErrReferencedEntityMissing) {
				t.Fatalf("\t%s\tTest 2:\tShould get back the missing entity error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get back the missing entity error.", success)
		}

		t.Logf("\tTest 3:\tWhen another transaction names an existing donation.")
		{
			c := funding.Confirmation{DonationID: "D3", TxHash: "other", BlockHash: "blk", BlockNumber: 3, ConfirmedAt: 200}
			err := funding.ConfirmDonation(ctx, s, c)
			if !errors.Is(err, funding.ErrReferencedEntityMissing) {
				t.Fatalf("\t%s\tTest 3:\tShould get back the missing entity error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould get back the missing entity error.", success)

			if dnt := s.donations["D3"]; dnt.Status != funding.DonationInPool || dnt.TxHash != "tx3" {
				t.Fatalf("\t%s\tTest 3:\tShould leave the donation untouched: %+v", failed, dnt)
			}
			if got := s.projects["P"].CurrentAmount; !got.Equal(decimal.NewFromInt(75)) {
				t.Fatalf("\t%s\tTest 3:\tShould not credit the project, got %s", failed, got)
			}
			t.Logf("\t%s\tTest 3:\tShould leave the donation and project untouched.", success)
		}

		t.Logf("\tTest 4:\tWhen a donation's transaction names a different donation id.")
		{
			c := funding.Confirmation{DonationID: "D1", TxHash: "tx3", BlockHash: "blk", BlockNumber: 3, ConfirmedAt: 200}
			err := funding.ConfirmDonation(ctx, s, c)
			if !errors.Is(err, funding.ErrReferencedEntityMissing) {
				t.Fatalf("\t%s\tTest 4:\tShould get back the missing entity error: %v", failed, err)
			}
			if dnt := s.donations["D3"]; dnt.Status != funding.DonationInPool {
				t.Fatalf("\t%s\tTest 4:\tShould leave the donation untouched: %+v", failed, dnt)
			}
			t.Logf("\t%s\tTest 4:\tShould reject the mismatched confirmation.", success)
		}
	}
}

func Test_ActivateProject(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to activate projects.")
	{
		s := newStore()
		s.projects["Q"] = funding.Project{ID: "Q", Status: funding.ProjectAwaitingChain, ChainAddress: "0xabc", ChainTxHash: "tx"}
		s.projects["R"] = funding.Project{ID: "R", Status: funding.ProjectAwaitingChain, ChainAddress: "0xdef", ChainTxHash: "tx-r"}

		t.Logf("\tTest 0:\tWhen the project awaits chain entry.")
		{
			a := funding.Activation{ProjectID: "Q", ChainAddress: "0xabc", TxHash: "tx", ActivatedAt: 10}
			changed, err := funding.ActivateProject(ctx, s, a)
			if err != nil || !changed {
				t.Fatalf("\t%s\tTest 0:\tShould be able to activate the project: %v", failed, err)
			}

			prj := s.projects["Q"]
			if prj.Status != funding.ProjectOnChain || prj.ChainAddress != "0xabc" || prj.ChainTxHash != "tx" || prj.OnChainAt != 10 {
				t.Fatalf("\t%s\tTest 0:\tShould record the chain details: %+v", failed, prj)
			}
			t.Logf("\t%s\tTest 0:\tShould move the project on chain.", success)

			changed, err = funding.ActivateProject(ctx, s, a)
			if err != nil || changed {
				t.Fatalf("\t%s\tTest 0:\tShould be a no-op on replay: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be a no-op on replay.", success)
		}

		t.Logf("\tTest 1:\tWhen the project does not exist.")
		{
			_, err := funding.ActivateProject(ctx, s, funding.Activation{ProjectID: "missing"})
			if !errors.Is(err, funding.ErrReferencedEntityMissing) {
				t.Fatalf("\t%s\tTest 1:\tShould get back the missing entity error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get back the missing entity error.", success)
		}

		t.Logf("\tTest 2:\tWhen a transaction other than the registration names the project.")
		{
			a := funding.Activation{ProjectID: "R", ChainAddress: "0xother", TxHash: "forged", ActivatedAt: 10}
			changed, err := funding.ActivateProject(ctx, s, a)
			if !errors.Is(err, funding.ErrReferencedEntityMissing) || changed {
				t.Fatalf("\t%s\tTest 2:\tShould refuse the activation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould refuse the activation.", success)

			prj := s.projects["R"]
			if prj.Status != funding.ProjectAwaitingChain || prj.ChainAddress != "0xdef" || prj.ChainTxHash != "tx-r" {
				t.Fatalf("\t%s\tTest 2:\tShould leave the project untouched: %+v", failed, prj)
			}
			t.Logf("\t%s\tTest 2:\tShould leave the project untouched.", success)
		}
	}
}

func Test_ProjectLifecycle(t *testing.T) {
	prj := funding.Project{ID: "P", Status: funding.ProjectPending}

	approved, err := prj.Review(true, 1)
	if err != nil || approved.Status != funding.ProjectApproved {
		t.Fatalf("Should be able to approve a pending project: %v", err)
	}

	if _, err := approved.Review(false, 2); !errors.Is(err, funding.ErrInvalidTransition) {
		t.Fatalf("Should not be able to review an approved project: %v", err)
	}

	awaiting, err := approved.AwaitChain("0xabc", "tx", 3)
	if err != nil || awaiting.Status != funding.ProjectAwaitingChain || awaiting.ChainAddress != "0xabc" {
		t.Fatalf("Should be able to request chain entry: %v", err)
	}

	if awaiting.AcceptsDonations() {
		t.Fatalf("Should not accept donations before the project is on chain.")
	}

	rejected, err := prj.Review(false, 1)
	if err != nil || rejected.Status != funding.ProjectRejected {
		t.Fatalf("Should be able to reject a pending project: %v", err)
	}

	if _, err := rejected.AwaitChain("0xabc", "tx", 3); !errors.Is(err, funding.ErrInvalidTransition) {
		t.Fatalf("Should not be able to request chain entry for a rejected project: %v", err)
	}
}

func Test_ProgressAndTotals(t *testing.T) {
	prj := funding.Project{
		ID:            "P",
		TargetAmount:  decimal.NewFromInt(3),
		CurrentAmount: decimal.NewFromInt(1),
		Status:        funding.ProjectOnChain,
	}

	prg := prj.Progress(4)
	if !prg.Percentage.Equal(decimal.RequireFromString("33.33")) || prg.DonationCount != 4 {
		t.Fatalf("Should round the percentage to two places: %+v", prg)
	}

	prj.TargetAmount = decimal.Zero
	if prg := prj.Progress(0); !prg.Percentage.IsZero() {
		t.Fatalf("Should be at zero without a target: %+v", prg)
	}

	var totals funding.DonationTotals
	if !totals.Average().IsZero() {
		t.Fatalf("Should average to zero without confirmed donations.")
	}

	totals = totals.Add(funding.Donation{Status: funding.DonationConfirmed, Amount: decimal.NewFromInt(10)})
	totals = totals.Add(funding.Donation{Status: funding.DonationInPool, Amount: decimal.NewFromInt(99)})
	totals = totals.Add(funding.Donation{Status: funding.DonationConfirmed, Amount: decimal.NewFromInt(5)})

	if totals.Count != 3 || totals.Confirmed != 2 || !totals.ConfirmedAmount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("Should only sum confirmed donations: %+v", totals)
	}
	if !totals.Average().Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("Should average the confirmed donations, got %s", totals.Average())
	}
}
