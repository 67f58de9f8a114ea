// Package handler wires the ledger services to chi routes. Handlers stay
// thin: decode, parse domain primitives, delegate, map errors.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"braza/internal/ledger/models"
	"braza/pkg/domain"
	"braza/pkg/platform/httputil"
	"braza/pkg/requestcontext"
)

// TokenService is the ledger surface this handler exposes.
type TokenService interface {
	Transfer(ctx context.Context, to domain.Address, amount domain.Amount, transferContext models.TransferContext) error
	TransferFrom(ctx context.Context, owner, to domain.Address, amount domain.Amount, transferContext models.TransferContext) error
	Approve(ctx context.Context, spender domain.Address, amount domain.Amount, expiry domain.Sequence) error
	Mint(ctx context.Context, to domain.Address, amount domain.Amount) error
	Burn(ctx context.Context, amount domain.Amount) error
	ForceTransfer(ctx context.Context, from, to domain.Address, amount domain.Amount) error
	ForceBurn(ctx context.Context, from domain.Address, amount domain.Amount) error
	Balance(ctx context.Context, addr domain.Address) (domain.Amount, error)
	Spendable(ctx context.Context, addr domain.Address) (domain.Amount, error)
	Allowance(ctx context.Context, owner, spender domain.Address) (domain.Amount, error)
	Supply(ctx context.Context) (models.SupplyStats, error)
	Metadata(ctx context.Context) (models.TokenMetadata, error)
}

// TokenHandler serves the /token routes.
type TokenHandler struct {
	service TokenService
	logger  *slog.Logger
}

// NewToken constructs the token handler.
func NewToken(service TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{service: service, logger: logger}
}

// Register mounts token endpoints on the router.
func (h *TokenHandler) Register(r chi.Router) {
	r.Post("/token/transfer", h.handleTransfer)
	r.Post("/token/transfer-from", h.handleTransferFrom)
	r.Post("/token/approve", h.handleApprove)
	r.Post("/token/mint", h.handleMint)
	r.Post("/token/burn", h.handleBurn)
	r.Post("/token/force-transfer", h.handleForceTransfer)
	r.Post("/token/force-burn", h.handleForceBurn)
	r.Get("/token/balance/{addr}", h.handleBalance)
	r.Get("/token/spendable/{addr}", h.handleSpendable)
	r.Get("/token/allowance/{owner}/{spender}", h.handleAllowance)
	r.Get("/token/supply", h.handleSupply)
	r.Get("/token/metadata", h.handleMetadata)
}

func (h *TokenHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[transferRequest](w, r)
	if !ok {
		return
	}
	to, err := parseAddress("recipient", req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Transfer(ctx, to, amount, req.transferContext()); err != nil {
		h.logger.WarnContext(ctx, "transfer rejected",
			"request_id", requestcontext.RequestID(ctx),
			"from", requestcontext.Caller(ctx),
			"to", to,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *TokenHandler) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[transferFromRequest](w, r)
	if !ok {
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := parseAddress("recipient", req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.TransferFrom(ctx, owner, to, amount, req.transferContext()); err != nil {
		h.logger.WarnContext(ctx, "transfer-from rejected",
			"request_id", requestcontext.RequestID(ctx),
			"spender", requestcontext.Caller(ctx),
			"owner", owner,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *TokenHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[approveRequest](w, r)
	if !ok {
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Approve(ctx, spender, amount, domain.Sequence(req.Expiry)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *TokenHandler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[mintRequest](w, r)
	if !ok {
		return
	}
	to, err := parseAddress("recipient", req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Mint(ctx, to, amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *TokenHandler) handleBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[burnRequest](w, r)
	if !ok {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Burn(ctx, amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *TokenHandler) handleForceTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[forceTransferRequest](w, r)
	if !ok {
		return
	}
	from, err := parseAddress("sender", req.From)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := parseAddress("recipient", req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ForceTransfer(ctx, from, to, amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *TokenHandler) handleForceBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[forceBurnRequest](w, r)
	if !ok {
		return
	}
	from, err := parseAddress("address", req.From)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ForceBurn(ctx, from, amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOK)
}

func (h *TokenHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.service.Balance(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Address: addr.String(), Amount: balance.Int64()})
}

func (h *TokenHandler) handleSpendable(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	spendable, err := h.service.Spendable(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Address: addr.String(), Amount: spendable.Int64()})
}

func (h *TokenHandler) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	spender, err := parseAddress("spender", chi.URLParam(r, "spender"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := h.service.Allowance(r.Context(), owner, spender)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, allowanceResponse{
		Owner:   owner.String(),
		Spender: spender.String(),
		Amount:  amount.Int64(),
	})
}

func (h *TokenHandler) handleSupply(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Supply(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *TokenHandler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.Metadata(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, metadataResponse{
		Name:     meta.Name,
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
	})
}
