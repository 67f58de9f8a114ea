package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"braza/internal/ledger/models"
	"braza/internal/ledger/vesting"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
	"braza/pkg/platform/httputil"
	"braza/pkg/requestcontext"
)

// VestingService is the vesting surface this handler exposes.
type VestingService interface {
	Create(ctx context.Context, params vesting.CreateParams) (models.VestingSchedule, error)
	Release(ctx context.Context, addr domain.Address) (domain.Amount, error)
	Revoke(ctx context.Context, addr domain.Address, id domain.ScheduleID) (domain.Amount, error)
	Schedules(ctx context.Context, addr domain.Address) ([]models.VestingSchedule, error)
	Releasable(ctx context.Context, addr domain.Address, id domain.ScheduleID) (domain.Amount, error)
}

// VestingHandler serves the /vesting routes.
type VestingHandler struct {
	service VestingService
	logger  *slog.Logger
}

// NewVesting constructs the vesting handler.
func NewVesting(service VestingService, logger *slog.Logger) *VestingHandler {
	return &VestingHandler{service: service, logger: logger}
}

// Register mounts vesting endpoints on the router.
func (h *VestingHandler) Register(r chi.Router) {
	r.Post("/vesting", h.handleCreate)
	r.Post("/vesting/{addr}/release", h.handleRelease)
	r.Post("/vesting/{addr}/{id}/revoke", h.handleRevoke)
	r.Get("/vesting/{addr}", h.handleList)
	r.Get("/vesting/{addr}/{id}/releasable", h.handleReleasable)
}

func scheduleID(r *http.Request) (domain.ScheduleID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, "invalid schedule id")
	}
	return domain.ScheduleID(id), nil
}

func (h *VestingHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createVestingRequest](w, r)
	if !ok {
		return
	}
	beneficiary, err := parseAddress("beneficiary", req.Beneficiary)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	total, err := parseAmount(req.Total)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.service.Create(ctx, vesting.CreateParams{
		Beneficiary: beneficiary,
		Total:       total,
		Start:       domain.Sequence(req.Start),
		Cliff:       domain.Sequence(req.Cliff),
		Duration:    domain.Sequence(req.Duration),
		Revocable:   req.Revocable,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "vesting creation rejected",
			"request_id", requestcontext.RequestID(ctx),
			"beneficiary", beneficiary,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	now, _ := requestcontext.SequenceFrom(ctx)
	httputil.WriteJSON(w, http.StatusCreated, fromSchedule(created, now))
}

func (h *VestingHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	released, err := h.service.Release(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Address: addr.String(), Amount: released.Int64()})
}

func (h *VestingHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := scheduleID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reclaimed, err := h.service.Revoke(r.Context(), addr, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Address: addr.String(), Amount: reclaimed.Int64()})
}

func (h *VestingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scheds, err := h.service.Schedules(ctx, addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	now, _ := requestcontext.SequenceFrom(ctx)
	out := make([]scheduleResponse, 0, len(scheds))
	for _, sched := range scheds {
		out = append(out, fromSchedule(sched, now))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *VestingHandler) handleReleasable(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := scheduleID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	releasable, err := h.service.Releasable(r.Context(), addr, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Address: addr.String(), Amount: releasable.Int64()})
}
