// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/chaos0211/block-dt/app/services/node/handlers/v1/campaigngrp"
	"github.com/chaos0211/block-dt/app/services/node/handlers/v1/ledgergrp"
	"github.com/chaos0211/block-dt/business/core/campaign"
	"github.com/chaos0211/block-dt/foundation/blockchain/balance"
	"github.com/chaos0211/block-dt/foundation/blockchain/state"
	"github.com/chaos0211/block-dt/foundation/events"
	"github.com/chaos0211/block-dt/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Sheet *balance.Sheet
	Evts  *events.Events
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	lgr := ledgergrp.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Sheet: cfg.Sheet,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", lgr.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", lgr.Genesis)
	app.Handle(http.MethodPost, version, "/tx/submit", lgr.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/tx/:hash", lgr.QueryTransaction)
	app.Handle(http.MethodGet, version, "/tx/:hash/proof", lgr.TransactionProof)
	app.Handle(http.MethodPost, version, "/mining/mine", lgr.MineBlock)
	app.Handle(http.MethodGet, version, "/mining/status", lgr.MiningStatus)
	app.Handle(http.MethodGet, version, "/pool/status", lgr.PoolStatus)
	app.Handle(http.MethodGet, version, "/pool/list", lgr.PoolList)
	app.Handle(http.MethodGet, version, "/chain/info", lgr.ChainInfo)
	app.Handle(http.MethodGet, version, "/blocks/list", lgr.BlockList)
	app.Handle(http.MethodGet, version, "/blocks/number/:number", lgr.BlockByNumber)
	app.Handle(http.MethodGet, version, "/blocks/hash/:hash", lgr.BlockByHash)
	app.Handle(http.MethodGet, version, "/balances/list", lgr.Balances)
	app.Handle(http.MethodGet, version, "/balances/list/:address", lgr.Balances)

	cgn := campaigngrp.Handlers{
		Log:      cfg.Log,
		Campaign: campaign.NewCore(cfg.State.Storer(), cfg.State.Pool()),
	}

	app.Handle(http.MethodPost, version, "/projects", cgn.CreateProject)
	app.Handle(http.MethodGet, version, "/projects/:id", cgn.QueryProject)
	app.Handle(http.MethodPost, version, "/projects/:id/approve", cgn.ApproveProject)
	app.Handle(http.MethodPost, version, "/projects/:id/onchain", cgn.RequestOnChain)
	app.Handle(http.MethodGet, version, "/projects/:id/progress", cgn.QueryProjectProgress)
	app.Handle(http.MethodPost, version, "/donations", cgn.Donate)
	app.Handle(http.MethodGet, version, "/donations/statistics", cgn.DonationStatistics)
	app.Handle(http.MethodGet, version, "/donations/:id", cgn.QueryDonation)
}
