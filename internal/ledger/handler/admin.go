package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"braza/internal/ledger/admin"
	"braza/pkg/domain"
	"braza/pkg/platform/httputil"
	"braza/pkg/requestcontext"
)

// AdminService is the lifecycle surface this handler exposes.
type AdminService interface {
	Initialize(ctx context.Context, params admin.InitializeParams) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	TransferOwnership(ctx context.Context, newAdmin domain.Address) error
	SetFeeCollector(ctx context.Context, collector domain.Address) error
}

// AdminHandler serves the /admin routes plus the one-time initialize.
type AdminHandler struct {
	service AdminService
	logger  *slog.Logger
}

// NewAdmin constructs the admin handler.
func NewAdmin(service AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// Register mounts admin endpoints on the router.
func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/token/initialize", h.handleInitialize)
	r.Post("/admin/pause", h.handlePause)
	r.Post("/admin/unpause", h.handleUnpause)
	r.Post("/admin/transfer-ownership", h.handleTransferOwnership)
	r.Post("/admin/fee-collector", h.handleFeeCollector)
}

func (h *AdminHandler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[initializeRequest](w, r)
	if !ok {
		return
	}
	adminAddr, err := parseAddress("admin", req.Admin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	collector, err := parseAddress("fee collector", req.FeeCollector)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	params := admin.InitializeParams{
		Admin:        adminAddr,
		FeeCollector: collector,
		Name:         req.Name,
		Symbol:       req.Symbol,
	}
	if err := h.service.Initialize(ctx, params); err != nil {
		h.logger.WarnContext(ctx, "initialization rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, statusOK)
}

func (h *AdminHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Pause(r.Context()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *AdminHandler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unpause(r.Context()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *AdminHandler) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[transferOwnershipRequest](w, r)
	if !ok {
		return
	}
	newAdmin, err := parseAddress("new admin", req.NewAdmin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.TransferOwnership(r.Context(), newAdmin); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *AdminHandler) handleFeeCollector(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[feeCollectorRequest](w, r)
	if !ok {
		return
	}
	collector, err := parseAddress("fee collector", req.Collector)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SetFeeCollector(r.Context(), collector); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}
