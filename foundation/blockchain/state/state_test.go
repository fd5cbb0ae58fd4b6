package state_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/digest"
	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/chaos0211/block-dt/foundation/blockchain/genesis"
	"github.com/chaos0211/block-dt/foundation/blockchain/mempool"
	"github.com/chaos0211/block-dt/foundation/blockchain/state"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage/memory"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage/sqldb"
	db "github.com/chaos0211/block-dt/foundation/database"
	"github.com/shopspring/decimal"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const miner = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"

func ifErrFailNow(t *testing.T, err error) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

func testGenesis() genesis.Genesis {
	g := genesis.Default()
	g.Difficulty = 1
	return g
}

func newState(t *testing.T, storer storage.Storer, g genesis.Genesis, reward state.Rewarder) *state.State {
	t.Helper()

	st, err := state.New(state.Config{
		MinerAddress: miner,
		Genesis:      g,
		Storer:       storer,
		Reward:       reward,
		EvHandler: func(v string, args ...any) {
			t.Logf("\t\t"+v, args...)
		},
	})
	ifErrFailNow(t, err)

	return st
}

func submit(t *testing.T, st *state.State, to string, fee string) database.BlockTx {
	t.Helper()

	tx, err := st.Pool().Submit(context.Background(), mempool.NewTx{
		Type:      database.TxTransfer,
		From:      "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32",
		To:        to,
		Amount:    decimal.NewFromInt(5),
		GasFee:    decimal.NewNullDecimal(decimal.RequireFromString(fee)),
		TimeStamp: 1700000000000,
	})
	ifErrFailNow(t, err)

	return tx
}

// =============================================================================

func Test_MineBlock(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to package pool transactions into a block.")
	{
		st := newState(t, memory.New(), testGenesis(), nil)

		low := submit(t, st, "a", "0.01")
		high := submit(t, st, "b", "0.90")
		mid := submit(t, st, "c", "0.30")

		t.Logf("\tTest 0:\tWhen mining the first block.")
		{
			result, err := st.MineBlock(ctx, "", 0)
			ifErrFailNow(t, err)

			if !result.Success || result.TransCount != 3 || len(result.BlockHash) != 64 {
				t.Fatalf("\t%s\tTest 0:\tShould get back a successful result: %+v", failed, result)
			}
			t.Logf("\t%s\tTest 0:\tShould get back a successful result.", success)

			if result.BlockNumber != testGenesis().StartNumber+1 {
				t.Fatalf("\t%s\tTest 0:\tShould mine the block after genesis, got %d", failed, result.BlockNumber)
			}
			t.Logf("\t%s\tTest 0:\tShould mine the block after genesis.", success)

			if !result.Reward.Equal(genesis.DefaultMiningReward) {
				t.Fatalf("\t%s\tTest 0:\tShould record the mining reward, got %s", failed, result.Reward)
			}
			t.Logf("\t%s\tTest 0:\tShould record the mining reward.", success)

			n, err := st.Pool().Size(ctx)
			ifErrFailNow(t, err)
			if n != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould empty the pool, got %d", failed, n)
			}
			t.Logf("\t%s\tTest 0:\tShould empty the pool.", success)

			bd, err := st.QueryBlockByNumber(ctx, result.BlockNumber)
			ifErrFailNow(t, err)

			exp := []string{high.Hash, mid.Hash, low.Hash}
			for i, tx := range bd.Trans {
				if tx.Hash != exp[i] || tx.Position != i || tx.BlockHash != result.BlockHash {
					t.Fatalf("\t%s\tTest 0:\tShould package by priority at %d: got %s exp %s", failed, i, tx.Hash, exp[i])
				}
			}
			t.Logf("\t%s\tTest 0:\tShould package the transactions by priority.", success)

			if bd.Hash[:1] != "0" {
				t.Fatalf("\t%s\tTest 0:\tShould solve the difficulty, got %s", failed, bd.Hash)
			}
			t.Logf("\t%s\tTest 0:\tShould solve the difficulty.", success)
		}

		t.Logf("\tTest 1:\tWhen looking up the mined transactions.")
		{
			for _, tx := range []database.BlockTx{low, mid, high} {
				lookup, err := st.QueryTransaction(ctx, tx.Hash)
				ifErrFailNow(t, err)
				if lookup.Status != state.TxStatusConfirmed {
					t.Fatalf("\t%s\tTest 1:\tShould find the tx confirmed, got %s", failed, lookup.Status)
				}

				proof, err := st.TransactionProof(ctx, tx.Hash)
				ifErrFailNow(t, err)
				if !proof.Verified {
					t.Fatalf("\t%s\tTest 1:\tShould verify the merkle proof of %s", failed, tx.Hash)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould verify the merkle proof of every tx.", success)
		}

		t.Logf("\tTest 2:\tWhen asking for the chain info.")
		{
			info, err := st.ChainInfo(ctx)
			ifErrFailNow(t, err)

			if info.TotalBlocks != 2 || info.Height != 1 || info.TotalTransactions != 3 || info.PendingPoolSize != 0 {
				t.Fatalf("\t%s\tTest 2:\tShould count the chain: %+v", failed, info)
			}
			t.Logf("\t%s\tTest 2:\tShould count the chain.", success)

			if !info.ChainValid {
				t.Fatalf("\t%s\tTest 2:\tShould report a valid chain: %s", failed, info.InvalidReason)
			}
			t.Logf("\t%s\tTest 2:\tShould report a valid chain.", success)

			status := st.MiningStatus()
			if status.IsMining || status.Phase != state.PhaseIdle || status.LastResult == nil {
				t.Fatalf("\t%s\tTest 2:\tShould report an idle miner with a result: %+v", failed, status)
			}
			t.Logf("\t%s\tTest 2:\tShould report an idle miner with a result.", success)
		}
	}
}

func Test_GenesisLinkage(t *testing.T) {
	ctx := context.Background()
	st := newState(t, memory.New(), testGenesis(), nil)

	submit(t, st, "a", "0.01")
	first, err := st.MineBlock(ctx, miner, 10)
	ifErrFailNow(t, err)

	submit(t, st, "b", "0.01")
	second, err := st.MineBlock(ctx, miner, 10)
	ifErrFailNow(t, err)

	gen, err := st.QueryBlockByNumber(ctx, 1)
	ifErrFailNow(t, err)

	if gen.Header.PrevBlockHash != digest.ZeroHash || gen.Header.MinerAddress != database.GenesisMiner || len(gen.Trans) != 0 {
		t.Fatalf("Should persist a genesis block: %+v", gen.Block)
	}

	b2, err := st.QueryBlockByHash(ctx, first.BlockHash)
	ifErrFailNow(t, err)
	if b2.Header.PrevBlockHash != gen.Hash {
		t.Fatalf("Should link the first mined block to genesis")
	}

	b3, err := st.QueryBlockByNumber(ctx, second.BlockNumber)
	ifErrFailNow(t, err)
	if b3.Header.PrevBlockHash != first.BlockHash || b3.Header.Number != 3 {
		t.Fatalf("Should link the second mined block to the first")
	}

	page, err := st.QueryBlocks(ctx, 1, 2)
	ifErrFailNow(t, err)
	if page.Total != 3 || len(page.Items) != 2 || page.Items[0].Hash != second.BlockHash {
		t.Fatalf("Should list the newest blocks first: %+v", page)
	}

	ifErrFailNow(t, st.ValidateChain(ctx))
}

func Test_EmptyPool(t *testing.T) {
	ctx := context.Background()
	st := newState(t, memory.New(), testGenesis(), nil)

	_, err := st.MineBlock(ctx, miner, 10)
	if !errors.Is(err, state.ErrNoPendingTransactions) {
		t.Fatalf("Should get back no pending transactions: %v", err)
	}

	info, err := st.ChainInfo(ctx)
	ifErrFailNow(t, err)
	if info.TotalBlocks != 0 || info.LatestBlock != nil || !info.ChainValid {
		t.Fatalf("Should leave the chain empty: %+v", info)
	}

	if status := st.MiningStatus(); status.Phase != state.PhaseIdle {
		t.Fatalf("Should leave the miner idle, got %s", status.Phase)
	}
}

// blockingReward holds the commit open until it is released.
type blockingReward struct {
	entered chan struct{}
	release chan struct{}
}

func (br *blockingReward) Credit(ctx context.Context, s storage.Session, block database.Block) error {
	close(br.entered)
	<-br.release
	return nil
}

func Test_MiningGuard(t *testing.T) {
	ctx := context.Background()

	br := blockingReward{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	st := newState(t, memory.New(), testGenesis(), &br)

	submit(t, st, "a", "0.01")

	var result state.MiningResult
	var mineErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, mineErr = st.MineBlock(ctx, miner, 10)
	}()

	<-br.entered

	status := st.MiningStatus()
	if !status.IsMining || status.Phase != state.PhaseCommitting {
		t.Fatalf("Should report the miner committing: %+v", status)
	}

	const g = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var busy int

	wg.Add(g)
	for i := 0; i < g; i++ {
		go func() {
			defer wg.Done()
			if _, err := st.MineBlock(ctx, miner, 10); errors.Is(err, state.ErrMiningInProgress) {
				mu.Lock()
				busy++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if busy != g {
		t.Fatalf("Should reject every concurrent call, got %d of %d", busy, g)
	}

	close(br.release)
	<-done

	ifErrFailNow(t, mineErr)
	if !result.Success {
		t.Fatalf("Should let the first call finish: %+v", result)
	}

	if st.MiningStatus().IsMining {
		t.Fatal("Should release the guard")
	}
}

// panicReward fails the commit the hard way.
type panicReward struct{}

func (panicReward) Credit(ctx context.Context, s storage.Session, block database.Block) error {
	panic("ledger offline")
}

func Test_MiningStatusSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("working phases only while mining", func(t *testing.T) {
		st := newState(t, memory.New(), testGenesis(), nil)

		stop := make(chan struct{})
		bad := make(chan state.MiningStatus, 1)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				status := st.MiningStatus()
				if !status.IsMining && status.Phase != state.PhaseIdle && status.Phase != state.PhaseFailed {
					select {
					case bad <- status:
					default:
					}
					return
				}
			}
		}()

		for i := 0; i < 5; i++ {
			submit(t, st, fmt.Sprintf("to-%d", i), "0.01")
			_, err := st.MineBlock(ctx, miner, 10)
			ifErrFailNow(t, err)
		}

		close(stop)
		wg.Wait()

		select {
		case status := <-bad:
			t.Fatalf("Should never report an idle miner in a working phase: %+v", status)
		default:
		}

		if status := st.MiningStatus(); status.IsMining || status.Phase != state.PhaseIdle {
			t.Fatalf("Should be idle after mining: %+v", status)
		}
	})

	t.Run("released after a panic", func(t *testing.T) {
		st := newState(t, memory.New(), testGenesis(), panicReward{})
		submit(t, st, "a", "0.01")

		for i := 0; i < 2; i++ {
			_, err := st.MineBlock(ctx, miner, 10)
			if err == nil || errors.Is(err, state.ErrMiningInProgress) {
				t.Fatalf("Should fail the run and release the guard, got %v", err)
			}
		}

		status := st.MiningStatus()
		if status.IsMining || status.Phase != state.PhaseFailed || status.LastError == "" {
			t.Fatalf("Should report the failure: %+v", status)
		}

		if n, err := st.Pool().Size(ctx); err != nil || n != 1 {
			t.Fatalf("Should keep the transaction in the pool, got %d %v", n, err)
		}
	})
}

func Test_MiningTimeout(t *testing.T) {
	ctx := context.Background()

	g := testGenesis()
	g.Difficulty = 64
	g.MaxAttempts = 500

	st := newState(t, memory.New(), g, nil)
	submit(t, st, "a", "0.01")

	_, err := st.MineBlock(ctx, miner, 10)
	if !errors.Is(err, state.ErrMiningTimeout) {
		t.Fatalf("Should get back a mining timeout: %v", err)
	}

	info, err := st.ChainInfo(ctx)
	ifErrFailNow(t, err)
	if info.TotalBlocks != 1 || info.TotalTransactions != 0 || info.PendingPoolSize != 1 {
		t.Fatalf("Should only keep the genesis block and the pool: %+v", info)
	}

	status := st.MiningStatus()
	if status.IsMining || status.Phase != state.PhaseFailed || status.LastError == "" {
		t.Fatalf("Should report the failure: %+v", status)
	}
}

type failingReward struct{}

func (failingReward) Credit(ctx context.Context, s storage.Session, block database.Block) error {
	return errors.New("ledger unavailable")
}

func Test_CommitRollback(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	st := newState(t, store, testGenesis(), failingReward{})

	dnt := seedDonation(t, store, st)

	_, err := st.MineBlock(ctx, miner, 10)
	if !errors.Is(err, state.ErrMiningCommitFailed) {
		t.Fatalf("Should get back a commit failure: %v", err)
	}

	err = store.View(ctx, func(s storage.Session) error {
		n, err := s.CountPending(ctx)
		if err != nil || n != 1 {
			return fmt.Errorf("pool: %d: %w", n, err)
		}

		c, err := s.CountConfirmed(ctx)
		if err != nil || c != 0 {
			return fmt.Errorf("confirmed: %d: %w", c, err)
		}

		got, err := s.QueryDonationByID(ctx, dnt.ID)
		if err != nil {
			return err
		}
		if got.Status != funding.DonationInPool {
			return fmt.Errorf("donation status %s", got.Status)
		}

		prj, err := s.QueryProjectByID(ctx, dnt.ProjectID)
		if err != nil {
			return err
		}
		if !prj.CurrentAmount.IsZero() {
			return fmt.Errorf("project amount %s", prj.CurrentAmount)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Should leave no partial state: %s", err)
	}
}

// =============================================================================

func seedDonation(t *testing.T, store storage.Storer, st *state.State) funding.Donation {
	t.Helper()
	ctx := context.Background()

	prj := funding.Project{
		ID:            "prj-1",
		Title:         "Clean water",
		Owner:         "0xOwner",
		TargetAmount:  decimal.NewFromInt(1000),
		CurrentAmount: decimal.Zero,
		Status:        funding.ProjectOnChain,
		ChainAddress:  "0xProject",
		CreatedAt:     1,
		UpdatedAt:     1,
	}

	dnt := funding.Donation{
		ID:        "dnt-1",
		ProjectID: prj.ID,
		Donor:     "0xDonor",
		Amount:    decimal.RequireFromString("25.5"),
		GasFee:    decimal.RequireFromString("0.01"),
		Status:    funding.DonationPending,
		CreatedAt: 1,
	}

	err := store.WithinTran(ctx, func(s storage.Session) error {
		if err := s.InsertProject(ctx, prj); err != nil {
			return err
		}

		tx, err := st.Pool().SubmitWithin(ctx, s, mempool.NewTx{
			Type:    database.TxDonation,
			From:    dnt.Donor,
			To:      prj.ChainAddress,
			Amount:  dnt.Amount,
			GasFee:  decimal.NewNullDecimal(dnt.GasFee),
			Payload: database.Payload{"donation_id": dnt.ID, "project_id": prj.ID},
		})
		if err != nil {
			return err
		}

		dnt.Status = funding.DonationInPool
		dnt.TxHash = tx.Hash

		return s.InsertDonation(ctx, dnt)
	})
	ifErrFailNow(t, err)

	return dnt
}

func Test_DonationSync(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	st := newState(t, store, testGenesis(), nil)

	dnt := seedDonation(t, store, st)

	result, err := st.MineBlock(ctx, miner, 10)
	ifErrFailNow(t, err)

	err = store.View(ctx, func(s storage.Session) error {
		got, err := s.QueryDonationByID(ctx, dnt.ID)
		if err != nil {
			return err
		}
		if got.Status != funding.DonationConfirmed || got.BlockHash != result.BlockHash || got.BlockNumber != result.BlockNumber || got.ConfirmedAt == 0 {
			return fmt.Errorf("donation not confirmed: %+v", got)
		}

		prj, err := s.QueryProjectByID(ctx, dnt.ProjectID)
		if err != nil {
			return err
		}
		if !prj.CurrentAmount.Equal(dnt.Amount) {
			return fmt.Errorf("project amount %s, exp %s", prj.CurrentAmount, dnt.Amount)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Should confirm the donation and credit the project: %s", err)
	}
}

func Test_ProjectSync(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	st := newState(t, store, testGenesis(), nil)

	prj := funding.Project{
		ID:            "prj-2",
		Title:         "School roof",
		Owner:         "0xOwner",
		TargetAmount:  decimal.NewFromInt(500),
		CurrentAmount: decimal.Zero,
		Status:        funding.ProjectAwaitingChain,
		CreatedAt:     1,
		UpdatedAt:     1,
	}

	var txHash string
	err := store.WithinTran(ctx, func(s storage.Session) error {
		if err := s.InsertProject(ctx, prj); err != nil {
			return err
		}

		tx, err := st.Pool().SubmitWithin(ctx, s, mempool.NewTx{
			Type:    database.TxProjectCreation,
			From:    prj.Owner,
			To:      "0xPlatform",
			Amount:  decimal.Zero,
			Payload: database.Payload{"project_id": prj.ID, "chain_address": "0xChain", "title": prj.Title},
		})
		if err != nil {
			return err
		}
		txHash = tx.Hash

		prj.ChainAddress = "0xChain"
		prj.ChainTxHash = tx.Hash
		return s.UpdateProject(ctx, prj)
	})
	ifErrFailNow(t, err)

	// A second registration of an unknown project is skipped.
	_, err = st.Pool().Submit(ctx, mempool.NewTx{
		Type:    database.TxProjectCreation,
		From:    prj.Owner,
		To:      "0xPlatform",
		Amount:  decimal.Zero,
		Payload: database.Payload{"project_id": "missing"},
	})
	ifErrFailNow(t, err)

	result, err := st.MineBlock(ctx, miner, 10)
	ifErrFailNow(t, err)
	if result.TransCount != 2 {
		t.Fatalf("Should confirm both transactions, got %d", result.TransCount)
	}

	err = store.View(ctx, func(s storage.Session) error {
		got, err := s.QueryProjectByID(ctx, prj.ID)
		if err != nil {
			return err
		}
		if got.Status != funding.ProjectOnChain || got.ChainAddress != "0xChain" || got.ChainTxHash != txHash || got.OnChainAt == 0 {
			return fmt.Errorf("project not on chain: %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Should move the project on chain: %s", err)
	}
}

func Test_SyncIgnoresForeignTransactions(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to only apply a record's own transactions.")
	{
		store := memory.New()
		st := newState(t, store, testGenesis(), nil)

		prj := funding.Project{
			ID:            "prj-3",
			Title:         "Village clinic",
			Owner:         "0xOwner",
			TargetAmount:  decimal.NewFromInt(500),
			CurrentAmount: decimal.Zero,
			Status:        funding.ProjectAwaitingChain,
			ChainAddress:  "0xRequested",
			CreatedAt:     1,
			UpdatedAt:     1,
		}

		var realTx database.BlockTx
		err := store.WithinTran(ctx, func(s storage.Session) error {
			if err := s.InsertProject(ctx, prj); err != nil {
				return err
			}

			var err error
			realTx, err = st.Pool().SubmitWithin(ctx, s, mempool.NewTx{
				Type:    database.TxProjectCreation,
				From:    prj.Owner,
				To:      "0xPlatform",
				Amount:  decimal.Zero,
				GasFee:  decimal.NewNullDecimal(decimal.Zero),
				Payload: database.Payload{"project_id": prj.ID, "chain_address": prj.ChainAddress},
			})
			if err != nil {
				return err
			}

			prj.ChainTxHash = realTx.Hash
			return s.UpdateProject(ctx, prj)
		})
		ifErrFailNow(t, err)

		t.Logf("\tTest 0:\tWhen a higher fee registration naming the project is mined first.")
		{
			forged, err := st.Pool().Submit(ctx, mempool.NewTx{
				Type:    database.TxProjectCreation,
				From:    "0xMallory",
				To:      "0xPlatform",
				Amount:  decimal.Zero,
				GasFee:  decimal.NewNullDecimal(decimal.NewFromInt(5)),
				Payload: database.Payload{"project_id": prj.ID, "chain_address": "0xMallory"},
			})
			ifErrFailNow(t, err)

			_, err = st.MineBlock(ctx, miner, 1)
			ifErrFailNow(t, err)

			got := queryProject(t, store, prj.ID)
			if got.Status != funding.ProjectAwaitingChain || got.ChainAddress != "0xRequested" || got.ChainTxHash != realTx.Hash {
				t.Fatalf("\t%s\tTest 0:\tShould ignore tx[%s]: %+v", failed, forged.Hash, got)
			}
			t.Logf("\t%s\tTest 0:\tShould ignore the foreign registration.", success)

			_, err = st.MineBlock(ctx, miner, 1)
			ifErrFailNow(t, err)

			got = queryProject(t, store, prj.ID)
			if got.Status != funding.ProjectOnChain || got.ChainAddress != "0xRequested" || got.ChainTxHash != realTx.Hash {
				t.Fatalf("\t%s\tTest 0:\tShould activate with the real registration: %+v", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould activate with the real registration.", success)
		}

		t.Logf("\tTest 1:\tWhen a transaction names somebody else's donation.")
		{
			dnt := funding.Donation{
				ID:        "dnt-alice",
				ProjectID: prj.ID,
				Donor:     "0xAlice",
				Amount:    decimal.NewFromInt(50),
				GasFee:    decimal.RequireFromString("0.01"),
				Status:    funding.DonationPending,
				CreatedAt: 1,
			}

			err := store.WithinTran(ctx, func(s storage.Session) error {
				if err := s.InsertDonation(ctx, dnt); err != nil {
					return err
				}

				tx, err := st.Pool().SubmitWithin(ctx, s, mempool.NewTx{
					Type:    database.TxDonation,
					From:    dnt.Donor,
					To:      "0xRequested",
					Amount:  dnt.Amount,
					GasFee:  decimal.NewNullDecimal(dnt.GasFee),
					Payload: database.Payload{"donation_id": dnt.ID, "project_id": prj.ID},
				})
				if err != nil {
					return err
				}

				dnt.Status = funding.DonationInPool
				dnt.TxHash = tx.Hash
				return s.UpdateDonation(ctx, dnt)
			})
			ifErrFailNow(t, err)

			_, err = st.Pool().Submit(ctx, mempool.NewTx{
				Type:    database.TxDonation,
				From:    "0xMallory",
				To:      "0xRequested",
				Amount:  decimal.Zero,
				GasFee:  decimal.NewNullDecimal(decimal.NewFromInt(5)),
				Payload: database.Payload{"donation_id": dnt.ID, "project_id": prj.ID},
			})
			ifErrFailNow(t, err)

			_, err = st.MineBlock(ctx, miner, 1)
			ifErrFailNow(t, err)

			var got funding.Donation
			err = store.View(ctx, func(s storage.Session) error {
				var err error
				got, err = s.QueryDonationByID(ctx, dnt.ID)
				return err
			})
			ifErrFailNow(t, err)

			if got.Status != funding.DonationInPool || got.TxHash != dnt.TxHash {
				t.Fatalf("\t%s\tTest 1:\tShould leave the donation in the pool: %+v", failed, got)
			}
			if amount := queryProject(t, store, prj.ID).CurrentAmount; !amount.IsZero() {
				t.Fatalf("\t%s\tTest 1:\tShould not credit the project, got %s", failed, amount)
			}
			t.Logf("\t%s\tTest 1:\tShould ignore the foreign donation transaction.", success)

			result, err := st.MineBlock(ctx, miner, 1)
			ifErrFailNow(t, err)

			err = store.View(ctx, func(s storage.Session) error {
				var err error
				got, err = s.QueryDonationByID(ctx, dnt.ID)
				return err
			})
			ifErrFailNow(t, err)

			if got.Status != funding.DonationConfirmed || got.BlockHash != result.BlockHash {
				t.Fatalf("\t%s\tTest 1:\tShould confirm with the donation's own transaction: %+v", failed, got)
			}
			if amount := queryProject(t, store, prj.ID).CurrentAmount; !amount.Equal(dnt.Amount) {
				t.Fatalf("\t%s\tTest 1:\tShould credit the project once, got %s", failed, amount)
			}
			t.Logf("\t%s\tTest 1:\tShould confirm with the donation's own transaction.", success)
		}
	}
}

func queryProject(t *testing.T, store storage.Storer, id string) funding.Project {
	t.Helper()

	var prj funding.Project
	err := store.View(context.Background(), func(s storage.Session) error {
		var err error
		prj, err = s.QueryProjectByID(context.Background(), id)
		return err
	})
	ifErrFailNow(t, err)

	return prj
}

func Test_TamperedChain(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	st := newState(t, store, testGenesis(), nil)

	submit(t, st, "a", "0.01")
	_, err := st.MineBlock(ctx, miner, 10)
	ifErrFailNow(t, err)

	info, err := st.ChainInfo(ctx)
	ifErrFailNow(t, err)
	if !info.ChainValid {
		t.Fatalf("Should start from a valid chain: %+v", info)
	}

	// Blocks mined after a successful check are validated from that block on.
	submit(t, st, "b", "0.01")
	_, err = st.MineBlock(ctx, miner, 10)
	ifErrFailNow(t, err)

	info, err = st.ChainInfo(ctx)
	ifErrFailNow(t, err)
	if !info.ChainValid || info.Height != 2 || info.LatestBlock == nil || info.LatestBlock.Header.Number != 3 {
		t.Fatalf("Should validate the newly mined block: %+v", info)
	}

	// Append a block that doesn't solve the puzzle or link to the tip.
	err = store.WithinTran(ctx, func(s storage.Session) error {
		return s.InsertBlock(ctx, database.Block{
			Header: database.BlockHeader{
				Number:        4,
				PrevBlockHash: digest.ZeroHash,
				TimeStamp:     1,
			},
			Hash:       "forged",
			Difficulty: 1,
		})
	})
	ifErrFailNow(t, err)

	info, err = st.ChainInfo(ctx)
	ifErrFailNow(t, err)
	if info.ChainValid || info.InvalidReason == "" {
		t.Fatalf("Should detect the forged block: %+v", info)
	}

	info, err = st.ChainInfo(ctx)
	ifErrFailNow(t, err)
	if info.ChainValid {
		t.Fatalf("Should keep reporting the forged block: %+v", info)
	}

	if err := st.ValidateChain(ctx); err == nil {
		t.Fatalf("Should fail the full validation.")
	}
}

func Test_MineBlockSQLite(t *testing.T) {
	ctx := context.Background()

	store, err := sqldb.Open(db.Config{
		Dialect: db.DialectSQLite,
		DSN:     filepath.Join(t.TempDir(), "ledger.db"),
	})
	ifErrFailNow(t, err)

	st := newState(t, store, testGenesis(), nil)
	defer st.Shutdown()

	dnt := seedDonation(t, store, st)
	submit(t, st, "a", "0.02")

	result, err := st.MineBlock(ctx, miner, 10)
	ifErrFailNow(t, err)
	if result.TransCount != 2 {
		t.Fatalf("Should confirm both transactions, got %d", result.TransCount)
	}

	err = store.View(ctx, func(s storage.Session) error {
		got, err := s.QueryDonationByID(ctx, dnt.ID)
		if err != nil {
			return err
		}
		if got.Status != funding.DonationConfirmed {
			return fmt.Errorf("donation status %s", got.Status)
		}
		return nil
	})
	ifErrFailNow(t, err)

	info, err := st.ChainInfo(ctx)
	ifErrFailNow(t, err)
	if !info.ChainValid || info.TotalBlocks != 2 || info.TotalTransactions != 2 {
		t.Fatalf("Should store a valid chain: %+v", info)
	}

	proof, err := st.TransactionProof(ctx, dnt.TxHash)
	ifErrFailNow(t, err)
	if !proof.Verified || len(proof.Proof) != 1 {
		t.Fatalf("Should prove the donation against the root: %+v", proof)
	}
}
