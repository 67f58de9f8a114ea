package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"braza/internal/ledger/compliance"
	"braza/internal/ledger/models"
	"braza/pkg/domain"
	"braza/pkg/platform/httputil"
	"braza/pkg/requestcontext"
)

// ComplianceService is the compliance surface this handler exposes.
type ComplianceService interface {
	SetKYC(ctx context.Context, addr domain.Address, level models.KYCLevel) error
	SetCountry(ctx context.Context, addr domain.Address, code string) error
	SetRiskScore(ctx context.Context, addr domain.Address, score uint32) error
	SetDailyLimit(ctx context.Context, addr domain.Address, limit domain.Amount) error
	Blacklist(ctx context.Context, addr domain.Address) error
	Unblacklist(ctx context.Context, addr domain.Address) error
	AllowCountry(ctx context.Context, code string) error
	DisallowCountry(ctx context.Context, code string) error
	Record(ctx context.Context, addr domain.Address) (models.ComplianceRecord, error)
}

// ComplianceHandler serves the /compliance routes.
type ComplianceHandler struct {
	service ComplianceService
	logger  *slog.Logger
}

// NewCompliance constructs the compliance handler.
func NewCompliance(service ComplianceService, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{service: service, logger: logger}
}

// Register mounts compliance endpoints on the router.
func (h *ComplianceHandler) Register(r chi.Router) {
	r.Post("/compliance/kyc", h.handleSetKYC)
	r.Post("/compliance/country", h.handleSetCountry)
	r.Post("/compliance/risk", h.handleSetRisk)
	r.Post("/compliance/daily-limit", h.handleSetDailyLimit)
	r.Post("/compliance/blacklist", h.handleBlacklist)
	r.Post("/compliance/unblacklist", h.handleUnblacklist)
	r.Post("/compliance/countries/allow", h.handleAllowCountry)
	r.Post("/compliance/countries/disallow", h.handleDisallowCountry)
	r.Get("/compliance/{addr}", h.handleGet)
}

func (h *ComplianceHandler) handleSetKYC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[setKYCRequest](w, r)
	if !ok {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SetKYC(ctx, addr, models.KYCLevel(req.Level)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "kyc level set",
		"request_id", requestcontext.RequestID(ctx),
		"address", addr,
		"level", req.Level,
	)
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *ComplianceHandler) handleSetCountry(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[setCountryRequest](w, r)
	if !ok {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SetCountry(r.Context(), addr, req.Country); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *ComplianceHandler) handleSetRisk(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[setRiskRequest](w, r)
	if !ok {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SetRiskScore(r.Context(), addr, req.Score); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *ComplianceHandler) handleSetDailyLimit(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[setDailyLimitRequest](w, r)
	if !ok {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := parseAmount(req.Limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SetDailyLimit(r.Context(), addr, limit); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *ComplianceHandler) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[addressRequest](w, r)
	if !ok {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Blacklist(ctx, addr); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "address blacklisted",
		"request_id", requestcontext.RequestID(ctx),
		"address", addr,
	)
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *ComplianceHandler) handleUnblacklist(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[addressRequest](w, r)
	if !ok {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Unblacklist(r.Context(), addr); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *ComplianceHandler) handleAllowCountry(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[countryRequest](w, r)
	if !ok {
		return
	}
	if err := h.service.AllowCountry(r.Context(), req.Country); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *ComplianceHandler) handleDisallowCountry(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[countryRequest](w, r)
	if !ok {
		return
	}
	if err := h.service.DisallowCountry(r.Context(), req.Country); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *ComplianceHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.Record(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, complianceResponse{
		Address:     rec.Address.String(),
		KYCLevel:    uint32(rec.KYCLevel),
		Country:     rec.CountryCode,
		RiskScore:   rec.RiskScore,
		Blacklisted: rec.Blacklisted,
		DailySpent:  rec.DailySpent.Int64(),
		DailyLimit:  compliance.DailyCap(rec).Int64(),
	})
}
