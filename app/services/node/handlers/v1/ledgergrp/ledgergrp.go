// Package ledgergrp maintains the group of handlers for the ledger:
// transactions, mining, the pool and the chain.
package ledgergrp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/chaos0211/block-dt/business/sys/validate"
	"github.com/chaos0211/block-dt/business/web/errs"
	"github.com/chaos0211/block-dt/foundation/blockchain/balance"
	"github.com/chaos0211/block-dt/foundation/blockchain/state"
	"github.com/chaos0211/block-dt/foundation/events"
	"github.com/chaos0211/block-dt/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Sheet *balance.Sheet
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the chain parameters.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// SubmitTransaction adds a new transaction to the pool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var ntx newTx
	if err := web.Decode(r, &ntx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(ntx); err != nil {
		return err
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "type", ntx.Type, "sender", ntx.From, "recipient", ntx.To, "amount", ntx.Amount)

	tx, err := h.State.Pool().Submit(ctx, toMempoolNewTx(ntx))
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := submitted{
		Status:      "transaction added to pool",
		Hash:        tx.Hash,
		GasFee:      tx.GasFee,
		Priority:    tx.Priority,
		Transaction: tx,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// QueryTransaction returns a pending or confirmed transaction.
func (h Handlers) QueryTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	lookup, err := h.State.QueryTransaction(ctx, web.Param(r, "hash"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, lookup, http.StatusOK)
}

// TransactionProof returns the merkle proof of a confirmed transaction.
func (h Handlers) TransactionProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proof, err := h.State.TransactionProof(ctx, web.Param(r, "hash"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, proof, http.StatusOK)
}

// MineBlock packages the pending transactions into a new block.
func (h Handlers) MineBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req mineRequest
	if err := web.Decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	h.Log.Infow("mine block", "traceid", v.TraceID, "miner", req.MinerAddress, "max", req.MaxTrans)

	result, err := h.State.MineBlock(ctx, req.MinerAddress, req.MaxTrans)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, result, http.StatusOK)
}

// MiningStatus returns the state of the miner.
func (h Handlers) MiningStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.MiningStatus(), http.StatusOK)
}

// PoolStatus returns the summary of the pool.
func (h Handlers) PoolStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats, err := h.State.Pool().Stats(ctx)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, stats, http.StatusOK)
}

// PoolList returns a page of the pending transactions.
func (h Handlers) PoolList(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	page, limit, err := paging(r)
	if err != nil {
		return err
	}

	result, err := h.State.Pool().List(ctx, page, limit)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, result, http.StatusOK)
}

// ChainInfo returns the summary of the chain.
func (h Handlers) ChainInfo(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	info, err := h.State.ChainInfo(ctx)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// BlockList returns a page of the chain, newest blocks first.
func (h Handlers) BlockList(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	page, limit, err := paging(r)
	if err != nil {
		return err
	}

	result, err := h.State.QueryBlocks(ctx, page, limit)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, result, http.StatusOK)
}

// BlockByNumber returns the block with the specified number.
func (h Handlers) BlockByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	number, err := strconv.ParseUint(web.Param(r, "number"), 10, 64)
	if err != nil {
		return validate.NewFieldsError("number", err)
	}

	bd, err := h.State.QueryBlockByNumber(ctx, number)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, bd, http.StatusOK)
}

// BlockByHash returns the block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	bd, err := h.State.QueryBlockByHash(ctx, web.Param(r, "hash"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, bd, http.StatusOK)
}

// Balances returns the value flows of every address, or one address.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	var bals []addrBalance
	switch address {
	case "":
		for addr, value := range h.Sheet.Copy() {
			bals = append(bals, addrBalance{Address: addr, Balance: value})
		}
		sort.Slice(bals, func(i, j int) bool { return bals[i].Address < bals[j].Address })

	default:
		value, exists := h.Sheet.Balance(address)
		if !exists {
			return errs.NewTrusted(fmt.Errorf("address %q has no ledger activity", address), http.StatusNotFound)
		}
		bals = []addrBalance{{Address: address, Balance: value}}
	}

	size, err := h.State.Pool().Size(ctx)
	if err != nil {
		return errs.FromLedger(err)
	}

	latest, err := h.State.QueryBlocks(ctx, 1, 1)
	if err != nil {
		return errs.FromLedger(err)
	}

	resp := balances{
		Uncommitted: size,
		Balances:    bals,
	}
	if len(latest.Items) > 0 {
		resp.LatestBlock = latest.Items[0].Hash
	}
	if resp.Balances == nil {
		resp.Balances = []addrBalance{}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

func paging(r *http.Request) (int, int, error) {
	page, err := web.QueryInt(r, "page", 1)
	if err != nil {
		return 0, 0, validate.NewFieldsError("page", err)
	}

	limit, err := web.QueryInt(r, "limit", 20)
	if err != nil {
		return 0, 0, validate.NewFieldsError("limit", err)
	}

	return page, limit, nil
}
