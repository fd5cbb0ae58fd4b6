// Package publish streams committed blocks to kafka so downstream services
// can follow the ledger without polling the node.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chaos0211/block-dt/foundation/blockchain/database"
	"github.com/chaos0211/block-dt/foundation/telemetry"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "ledger-blocks"

// messageWriter is the part of the kafka writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config represents the settings of the producer.
type Config struct {
	Brokers []string
	Topic   string
}

// Producer publishes a message for every block committed to the chain.
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer constructs a producer for the configured brokers.
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 500 * time.Millisecond,
	}

	return &Producer{writer: writer, topic: cfg.Topic}, nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// =============================================================================

// TxMessage is the summary of a transaction inside a block message.
type TxMessage struct {
	Hash   string          `json:"hash"`
	Type   database.TxType `json:"type"`
	From   string          `json:"sender"`
	To     string          `json:"recipient"`
	Amount decimal.Decimal `json:"amount"`
}

// BlockMessage is the value written to kafka for a committed block.
type BlockMessage struct {
	Kind          string          `json:"kind"`
	Number        uint64          `json:"block_number"`
	Hash          string          `json:"block_hash"`
	PrevBlockHash string          `json:"previous_hash"`
	MerkleRoot    string          `json:"merkle_root"`
	Nonce         uint64          `json:"nonce"`
	MinerAddress  string          `json:"miner_address"`
	Reward        decimal.Decimal `json:"reward"`
	TimeStamp     int64           `json:"timestamp"`
	Trans         []TxMessage     `json:"transactions"`
}

// BlockCommitted implements the state.Notifier interface.
func (p *Producer) BlockCommitted(ctx context.Context, bd database.BlockData) error {
	tracer := otel.Tracer("ledger/publish")

	ctx, span := tracer.Start(ctx, "publish.block_committed", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.Int64("block.number", int64(bd.Header.Number)),
		attribute.String("block.hash", bd.Hash),
		attribute.Int("block.transactions", len(bd.Trans)),
	)

	payload, err := json.Marshal(newBlockMessage(bd))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("encoding block[%d]: %w", bd.Header.Number, err)
	}

	headers := make([]kafka.Header, 0, 2)
	telemetry.InjectKafkaHeaders(ctx, &headers)

	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(fmt.Sprintf("block:%d", bd.Header.Number)),
		Value:   payload,
		Headers: headers,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publishing block[%d]: %w", bd.Header.Number, err)
	}

	return nil
}

func newBlockMessage(bd database.BlockData) BlockMessage {
	trans := make([]TxMessage, len(bd.Trans))
	for i, tx := range bd.Trans {
		trans[i] = TxMessage{
			Hash:   tx.Hash,
			Type:   tx.Type,
			From:   tx.From,
			To:     tx.To,
			Amount: tx.Amount,
		}
	}

	return BlockMessage{
		Kind:          "block_committed",
		Number:        bd.Header.Number,
		Hash:          bd.Hash,
		PrevBlockHash: bd.Header.PrevBlockHash,
		MerkleRoot:    bd.Header.MerkleRoot,
		Nonce:         bd.Header.Nonce,
		MinerAddress:  bd.Header.MinerAddress,
		Reward:        bd.Reward,
		TimeStamp:     bd.Header.TimeStamp,
		Trans:         trans,
	}
}
