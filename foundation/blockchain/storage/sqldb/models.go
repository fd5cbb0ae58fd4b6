package sqldb

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/blockchain/funding"
	"github.com/shopspring/decimal"
)

// txRow represents a transaction in the pool or transactions tables.
type txRow struct {
	Hash      string
	Type      string
	Sender    string
	Recipient string
	Amount    string
	GasFee    string
	Payload   string
	Priority  float64
	TimeStamp int64
}

func toTxRow(tx database.BlockTx) (txRow, error) {
	payload := tx.Payload
	if payload == nil {
		payload = database.Payload{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return txRow{}, fmt.Errorf("encoding payload: %w", err)
	}

	row := txRow{
		Hash:      tx.Hash,
		Type:      string(tx.Type),
		Sender:    tx.From,
		Recipient: tx.To,
		Amount:    tx.Amount.String(),
		GasFee:    tx.GasFee.String(),
		Payload:   string(data),
		Priority:  tx.Priority,
		TimeStamp: tx.TimeStamp,
	}

	return row, nil
}

func (r *txRow) args() []any {
	return []any{r.Hash, r.Type, r.Sender, r.Recipient, r.Amount, r.GasFee, r.Payload, r.Priority, r.TimeStamp}
}

func (r *txRow) dest() []any {
	return []any{&r.Hash, &r.Type, &r.Sender, &r.Recipient, &r.Amount, &r.GasFee, &r.Payload, &r.Priority, &r.TimeStamp}
}

func (r txRow) toBlockTx() (database.BlockTx, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return database.BlockTx{}, fmt.Errorf("parsing amount of tx[%s]: %w", r.Hash, err)
	}

	fee, err := decimal.NewFromString(r.GasFee)
	if err != nil {
		return database.BlockTx{}, fmt.Errorf("parsing gas fee of tx[%s]: %w", r.Hash, err)
	}

	// Numbers are kept as json.Number so the payload hashes back to the
	// same bytes it was submitted with.
	payload := database.Payload{}
	dec := json.NewDecoder(bytes.NewReader([]byte(r.Payload)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return database.BlockTx{}, fmt.Errorf("decoding payload of tx[%s]: %w", r.Hash, err)
	}

	tx := database.BlockTx{
		Tx: database.Tx{
			Type:      database.TxType(r.Type),
			From:      r.Sender,
			To:        r.Recipient,
			Amount:    amount,
			Payload:   payload,
			TimeStamp: r.TimeStamp,
		},
		Hash:     r.Hash,
		GasFee:   fee,
		Priority: r.Priority,
	}

	return tx, nil
}

// =============================================================================

// confirmedRow represents a row of the transactions table.
type confirmedRow struct {
	txRow
	BlockHash   string
	BlockNumber int64
	Position    int
	ConfirmedAt int64
}

func (r *confirmedRow) dest() []any {
	return append(r.txRow.dest(), &r.BlockHash, &r.BlockNumber, &r.Position, &r.ConfirmedAt)
}

func (r confirmedRow) toConfirmedTx() (database.ConfirmedTx, error) {
	btx, err := r.toBlockTx()
	if err != nil {
		return database.ConfirmedTx{}, err
	}

	tx := database.ConfirmedTx{
		BlockTx:     btx,
		BlockHash:   r.BlockHash,
		BlockNumber: uint64(r.BlockNumber),
		Position:    r.Position,
		ConfirmedAt: r.ConfirmedAt,
	}

	return tx, nil
}

// =============================================================================

// blockRow represents a row of the blocks table.
type blockRow struct {
	Number       int64
	Hash         string
	PrevHash     string
	MerkleRoot   string
	TimeStamp    int64
	MinerAddress string
	Nonce        int64
	Difficulty   int64
	Reward       string
	TransCount   int
}

func (r *blockRow) dest() []any {
	return []any{&r.Number, &r.Hash, &r.PrevHash, &r.MerkleRoot, &r.TimeStamp, &r.MinerAddress, &r.Nonce, &r.Difficulty, &r.Reward, &r.TransCount}
}

func (r blockRow) toBlock() (database.Block, error) {
	reward, err := decimal.NewFromString(r.Reward)
	if err != nil {
		return database.Block{}, fmt.Errorf("parsing reward of block[%d]: %w", r.Number, err)
	}

	block := database.Block{
		Header: database.BlockHeader{
			Number:        uint64(r.Number),
			PrevBlockHash: r.PrevHash,
			MerkleRoot:    r.MerkleRoot,
			TimeStamp:     r.TimeStamp,
			MinerAddress:  r.MinerAddress,
			Nonce:         uint64(r.Nonce),
		},
		Hash:       r.Hash,
		Difficulty: uint(r.Difficulty),
		Reward:     reward,
		TransCount: r.TransCount,
	}

	return block, nil
}

// =============================================================================

// projectRow represents a row of the projects table.
type projectRow struct {
	ID            string
	Title         string
	Owner         string
	TargetAmount  string
	CurrentAmount string
	Status        string
	ChainAddress  string
	ChainTxHash   string
	OnChainAt     int64
	CreatedAt     int64
	UpdatedAt     int64
}

func toProjectRow(prj funding.Project) projectRow {
	return projectRow{
		ID:            prj.ID,
		Title:         prj.Title,
		Owner:         prj.Owner,
		TargetAmount:  prj.TargetAmount.String(),
		CurrentAmount: prj.CurrentAmount.String(),
		Status:        string(prj.Status),
		ChainAddress:  prj.ChainAddress,
		ChainTxHash:   prj.ChainTxHash,
		OnChainAt:     prj.OnChainAt,
		CreatedAt:     prj.CreatedAt,
		UpdatedAt:     prj.UpdatedAt,
	}
}

func (r *projectRow) dest() []any {
	return []any{&r.ID, &r.Title, &r.Owner, &r.TargetAmount, &r.CurrentAmount, &r.Status, &r.ChainAddress, &r.ChainTxHash, &r.OnChainAt, &r.CreatedAt, &r.UpdatedAt}
}

func (r projectRow) toProject() (funding.Project, error) {
	target, err := decimal.NewFromString(r.TargetAmount)
	if err != nil {
		return funding.Project{}, fmt.Errorf("parsing target amount of project[%s]: %w", r.ID, err)
	}

	current, err := decimal.NewFromString(r.CurrentAmount)
	if err != nil {
		return funding.Project{}, fmt.Errorf("parsing current amount of project[%s]: %w", r.ID, err)
	}

	prj := funding.Project{
		ID:            r.ID,
		Title:         r.Title,
		Owner:         r.Owner,
		TargetAmount:  target,
		CurrentAmount: current,
		Status:        funding.ProjectStatus(r.Status),
		ChainAddress:  r.ChainAddress,
		ChainTxHash:   r.ChainTxHash,
		OnChainAt:     r.OnChainAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}

	return prj, nil
}

// =============================================================================

// donationRow represents a row of the donations table.
type donationRow struct {
	ID          string
	ProjectID   string
	Donor       string
	Amount      string
	GasFee      string
	Status      string
	TxHash      string
	BlockHash   string
	BlockNumber int64
	ConfirmedAt int64
	CreatedAt   int64
}

func toDonationRow(dnt funding.Donation) donationRow {
	return donationRow{
		ID:          dnt.ID,
		ProjectID:   dnt.ProjectID,
		Donor:       dnt.Donor,
		Amount:      dnt.Amount.String(),
		GasFee:      dnt.GasFee.String(),
		Status:      string(dnt.Status),
		TxHash:      dnt.TxHash,
		BlockHash:   dnt.BlockHash,
		BlockNumber: int64(dnt.BlockNumber),
		ConfirmedAt: dnt.ConfirmedAt,
		CreatedAt:   dnt.CreatedAt,
	}
}

func (r *donationRow) dest() []any {
	return []any{&r.ID, &r.ProjectID, &r.Donor, &r.Amount, &r.GasFee, &r.Status, &r.TxHash, &r.BlockHash, &r.BlockNumber, &r.ConfirmedAt, &r.CreatedAt}
}

func (r donationRow) toDonation() (funding.Donation, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return funding.Donation{}, fmt.Errorf("parsing amount of donation[%s]: %w", r.ID, err)
	}

	fee, err := decimal.NewFromString(r.GasFee)
	if err != nil {
		return funding.Donation{}, fmt.Errorf("parsing gas fee of donation[%s]: %w", r.ID, err)
	}

	dnt := funding.Donation{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Donor:       r.Donor,
		Amount:      amount,
		GasFee:      fee,
		Status:      funding.DonationStatus(r.Status),
		TxHash:      r.TxHash,
		BlockHash:   r.BlockHash,
		BlockNumber: uint64(r.BlockNumber),
		ConfirmedAt: r.ConfirmedAt,
		CreatedAt:   r.CreatedAt,
	}

	return dnt, nil
}
