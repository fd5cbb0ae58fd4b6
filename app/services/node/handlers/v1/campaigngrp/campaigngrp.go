// Package campaigngrp maintains the group of handlers for projects and
// donations.
package campaigngrp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chaos0211/block-dt/business/core/campaign"
	"github.com/chaos0211/block-dt/business/sys/validate"
	"github.com/chaos0211/block-dt/business/web/errs"
	"github.com/chaos0211/block-dt/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of project and donation endpoints.
type Handlers struct {
	Log      *zap.SugaredLogger
	Campaign *campaign.Core
}

type review struct {
	Approve *bool `json:"approve" validate:"required"`
}

// CreateProject registers a new project waiting for review.
func (h Handlers) CreateProject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var np campaign.NewProject
	if err := web.Decode(r, &np); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	prj, err := h.Campaign.CreateProject(ctx, np)
	if err != nil {
		return errs.FromLedger(err)
	}

	h.Log.Infow("create project", "traceid", web.GetTraceID(ctx), "project", prj.ID, "owner", prj.Owner)

	return web.Respond(ctx, w, prj, http.StatusCreated)
}

// ApproveProject records the review of a pending project.
func (h Handlers) ApproveProject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var rv review
	if err := web.Decode(r, &rv); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(rv); err != nil {
		return err
	}

	prj, err := h.Campaign.ApproveProject(ctx, web.Param(r, "id"), *rv.Approve)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, prj, http.StatusOK)
}

// RequestOnChain submits the registration transaction of an approved project.
func (h Handlers) RequestOnChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	prj, err := h.Campaign.RequestOnChain(ctx, web.Param(r, "id"))
	if err != nil {
		return errs.FromLedger(err)
	}

	h.Log.Infow("project on chain requested", "traceid", web.GetTraceID(ctx), "project", prj.ID, "tx", prj.ChainTxHash)

	return web.Respond(ctx, w, prj, http.StatusAccepted)
}

// QueryProject returns the specified project.
func (h Handlers) QueryProject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	prj, err := h.Campaign.QueryProject(ctx, web.Param(r, "id"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, prj, http.StatusOK)
}

// QueryProjectProgress returns the funding progress of the specified project.
func (h Handlers) QueryProjectProgress(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	prg, err := h.Campaign.QueryProjectProgress(ctx, web.Param(r, "id"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, prg, http.StatusOK)
}

// Donate records a donation and submits its transaction to the pool.
func (h Handlers) Donate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nd campaign.NewDonation
	if err := web.Decode(r, &nd); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	dnt, err := h.Campaign.Donate(ctx, nd)
	if err != nil {
		return errs.FromLedger(err)
	}

	h.Log.Infow("donation", "traceid", web.GetTraceID(ctx), "donation", dnt.ID, "project", dnt.ProjectID, "tx", dnt.TxHash)

	return web.Respond(ctx, w, dnt, http.StatusCreated)
}

// QueryDonation returns the specified donation.
func (h Handlers) QueryDonation(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dnt, err := h.Campaign.QueryDonation(ctx, web.Param(r, "id"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, dnt, http.StatusOK)
}

// DonationStatistics returns the confirmed donation totals, optionally for
// the project named by the project_id query parameter.
func (h Handlers) DonationStatistics(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats, err := h.Campaign.QueryDonationStatistics(ctx, r.URL.Query().Get("project_id"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, stats, http.StatusOK)
}
