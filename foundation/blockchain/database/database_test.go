package database_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/digest"
	"github.com/chaos0211/block-dt/foundation/blockchain/merkle"
	"github.com/shopspring/decimal"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func newTx(t *testing.T, amount string, ts int64, payload database.Payload) database.BlockTx {
	t.Helper()

	tx, err := database.NewBlockTx(database.Tx{
		Type:      database.TxDonation,
		From:      "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4",
		To:        "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32",
		Amount:    decimal.RequireFromString(amount),
		Payload:   payload,
		TimeStamp: ts,
	}, decimal.RequireFromString("0.01"), 1)
	if err != nil {
		t.Fatalf("Should be able to construct the transaction: %s", err)
	}

	return tx
}

// =============================================================================

func Test_TransactionHash(t *testing.T) {
	t.Log("Given the need to content address transactions.")
	{
		t.Logf("\tTest 0:\tWhen hashing transactions.")
		{
			a := newTx(t, "50", 1700000000000, database.Payload{"donation_id": "d1", "project_id": "p1"})
			b := newTx(t, "50.00", 1700000000000, database.Payload{"project_id": "p1", "donation_id": "d1"})
			if a.Hash != b.Hash {
				t.Logf("\t%s\tTest 0:\tgot: %s", failed, b.Hash)
				t.Logf("\t%s\tTest 0:\texp: %s", failed, a.Hash)
				t.Fatalf("\t%s\tTest 0:\tShould get the same hash for the same logical content.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get the same hash for the same logical content.", success)

			distinct := []database.BlockTx{
				newTx(t, "51", 1700000000000, database.Payload{"donation_id": "d1"}),
				newTx(t, "50", 1700000000001, database.Payload{"donation_id": "d1"}),
				newTx(t, "50", 1700000000000, database.Payload{"donation_id": "d2"}),
				newTx(t, "50", 1700000000000, nil),
			}

			seen := map[string]bool{a.Hash: true}
			for i, tx := range distinct {
				if seen[tx.Hash] {
					t.Fatalf("\t%s\tTest 0:\tShould get a distinct hash for distinct content: %d", failed, i)
				}
				seen[tx.Hash] = true
			}
			t.Logf("\t%s\tTest 0:\tShould get a distinct hash for distinct content.", success)

			if len(a.Hash) != 64 {
				t.Fatalf("\t%s\tTest 0:\tShould get a 64 character hash, got %d.", failed, len(a.Hash))
			}
			t.Logf("\t%s\tTest 0:\tShould get a 64 character hash.", success)
		}
	}
}

func Test_CanonicalOrder(t *testing.T) {
	tx := database.Tx{
		Type:      database.TxTransfer,
		From:      "a",
		To:        "b",
		Amount:    decimal.NewFromInt(5),
		Payload:   database.Payload{"z": 1, "a": "x"},
		TimeStamp: 10,
	}

	data, err := digest.Canonical(tx)
	if err != nil {
		t.Fatal(err)
	}

	const exp = `{"type":"transfer","sender":"a","recipient":"b","amount":"5","payload":{"a":"x","z":1},"timestamp":10}`
	if string(data) != exp {
		t.Logf("got: %s", data)
		t.Logf("exp: %s", exp)
		t.Fatalf("Should encode the fields in canonical order.")
	}
}

func Test_PayloadString(t *testing.T) {
	p := database.Payload{"s": "abc", "n": float64(42), "nil": nil}

	if got := p.String("s"); got != "abc" {
		t.Fatalf("Should get back the string value, got %q", got)
	}
	if got := p.String("n"); got != "42" {
		t.Fatalf("Should get back the number without exponent, got %q", got)
	}
	if got := p.String("nil"); got != "" {
		t.Fatalf("Should get back empty for nil, got %q", got)
	}
	if got := p.String("missing"); got != "" {
		t.Fatalf("Should get back empty for missing, got %q", got)
	}
}

func Test_Genesis(t *testing.T) {
	genesis, err := database.NewGenesisBlock(1, 1700000000000)
	if err != nil {
		t.Fatalf("Should be able to construct the genesis block: %s", err)
	}

	if err := genesis.ValidateGenesis(); err != nil {
		t.Fatalf("Should be able to validate the genesis block: %s", err)
	}

	if genesis.Header.PrevBlockHash != digest.ZeroHash {
		t.Fatalf("Should link the genesis block to the zero hash.")
	}

	if genesis.Header.MerkleRoot != merkle.EmptyRoot {
		t.Fatalf("Should use the empty root for the genesis block.")
	}

	genesis.Header.MinerAddress = "someone"
	if err := genesis.ValidateGenesis(); err == nil {
		t.Fatalf("Should fail validation once the header changed.")
	}
}

func Test_POW(t *testing.T) {
	t.Log("Given the need to mine blocks.")
	{
		genesis, err := database.NewGenesisBlock(1, 1700000000000)
		if err != nil {
			t.Fatal(err)
		}

		trans := []database.BlockTx{
			newTx(t, "50", 1700000000001, database.Payload{"donation_id": "d1"}),
			newTx(t, "20", 1700000000002, database.Payload{"donation_id": "d2"}),
			newTx(t, "10", 1700000000003, database.Payload{"donation_id": "d3"}),
		}

		t.Logf("\tTest 0:\tWhen mining a block with difficulty 2.")
		{
			block, err := database.POW(context.Background(), database.POWArgs{
				MinerAddress: "miner1",
				Difficulty:   2,
				MaxAttempts:  1_000_000,
				Reward:       decimal.NewFromInt(10),
				PrevBlock:    genesis,
				Trans:        trans,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine the block: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine the block.", success)

			if !strings.HasPrefix(block.Hash, "00") {
				t.Fatalf("\t%s\tTest 0:\tShould get a hash that solves the difficulty: %s", failed, block.Hash)
			}
			t.Logf("\t%s\tTest 0:\tShould get a hash that solves the difficulty.", success)

			if block.Header.PrevBlockHash != genesis.Hash || block.Header.Number != genesis.Header.Number+1 {
				t.Fatalf("\t%s\tTest 0:\tShould link the block to the genesis block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould link the block to the genesis block.", success)

			if err := block.ValidateBlock(genesis, trans, nil); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to validate the block: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to validate the block.", success)

			reordered := []database.BlockTx{trans[1], trans[0], trans[2]}
			if err := block.ValidateBlock(genesis, reordered, nil); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould fail validation with reordered transactions.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould fail validation with reordered transactions.", success)

			tampered := append([]database.BlockTx(nil), trans...)
			tampered[0].Amount = decimal.NewFromInt(5000)
			if err := block.ValidateBlock(genesis, tampered, nil); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould fail validation with a tampered transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould fail validation with a tampered transaction.", success)

			forged := block
			forged.Header.Nonce++
			if err := forged.ValidateBlock(genesis, trans, nil); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould fail validation with a changed nonce.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould fail validation with a changed nonce.", success)
		}

		t.Logf("\tTest 1:\tWhen the attempts are exhausted.")
		{
			_, err := database.POW(context.Background(), database.POWArgs{
				MinerAddress: "miner1",
				Difficulty:   64,
				MaxAttempts:  10,
				PrevBlock:    genesis,
				Trans:        trans,
			})
			if !errors.Is(err, database.ErrPOWExhausted) {
				t.Fatalf("\t%s\tTest 1:\tShould get back the exhausted error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get back the exhausted error.", success)
		}
	}
}
