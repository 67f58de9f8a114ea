package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"braza/internal/ledger/admin"
	"braza/internal/ledger/compliance"
	"braza/internal/ledger/guard"
	"braza/internal/ledger/metrics"
	"braza/internal/ledger/store/memory"
	"braza/internal/ledger/token"
	"braza/internal/ledger/vesting"
	"braza/pkg/domain"
	"braza/pkg/platform/middleware/caller"
	"braza/pkg/platform/middleware/requestid"
	"braza/pkg/platform/middleware/sequence"
)

const adminAddress = "admin-1"

// newLedgerRouter wires the full stack over the in-memory substrate, the way
// the server binary does.
func newLedgerRouter(t *testing.T) chi.Router {
	t.Helper()

	store := memory.New()
	g := guard.New()
	m := metrics.NewWith(prometheus.NewRegistry())
	log := slog.Default()

	adminSvc, err := admin.New(store, g, m)
	if err != nil {
		t.Fatalf("admin service: %v", err)
	}
	complianceSvc, err := compliance.New(store, g, m)
	if err != nil {
		t.Fatalf("compliance service: %v", err)
	}
	vestingSvc, err := vesting.New(store, g, m)
	if err != nil {
		t.Fatalf("vesting service: %v", err)
	}
	tokenSvc, err := token.New(store, g, m)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware, sequence.Middleware, caller.Middleware)
	NewAdmin(adminSvc, log).Register(r)
	NewToken(tokenSvc, log).Register(r)
	NewVesting(vestingSvc, log).Register(r)
	NewCompliance(complianceSvc, log).Register(r)
	return r
}

func do(t *testing.T, router chi.Router, method, path, as string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("X-Caller-Address", as)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func initializeLedger(t *testing.T, router chi.Router) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/token/initialize", adminAddress, map[string]any{
		"admin":         adminAddress,
		"fee_collector": "fees",
		"name":          "Braza",
		"symbol":        "BRZ",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 initializing, got %d: %s", rec.Code, rec.Body)
	}
}

// onboard makes an address compliant enough to move tokens.
func onboard(t *testing.T, router chi.Router, addr string) {
	t.Helper()
	steps := []struct {
		path    string
		payload map[string]any
	}{
		{"/compliance/countries/allow", map[string]any{"country": "BR"}},
		{"/compliance/kyc", map[string]any{"address": addr, "level": 3}},
		{"/compliance/country", map[string]any{"address": addr, "country": "BR"}},
	}
	for _, step := range steps {
		rec := do(t, router, http.MethodPost, step.path, adminAddress, step.payload)
		if rec.Code != http.StatusOK {
			t.Fatalf("onboarding %s via %s: got %d: %s", addr, step.path, rec.Code, rec.Body)
		}
	}
}

func TestInitializeAndMetadata(t *testing.T) {
	router := newLedgerRouter(t)

	rec := do(t, router, http.MethodGet, "/token/metadata", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before initialization, got %d", rec.Code)
	}

	initializeLedger(t, router)

	rec = do(t, router, http.MethodGet, "/token/metadata", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var meta metadataResponse
	if err := json.NewDecoder(rec.Body).Decode(&meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Symbol != "BRZ" || meta.Decimals != 7 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	rec = do(t, router, http.MethodGet, "/token/balance/"+adminAddress, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var balance amountResponse
	if err := json.NewDecoder(rec.Body).Decode(&balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Amount != domain.InitialSupply.Int64() {
		t.Fatalf("expected the initial supply on the admin, got %d", balance.Amount)
	}

	rec = do(t, router, http.MethodPost, "/token/initialize", adminAddress, map[string]any{
		"admin": adminAddress, "fee_collector": "fees", "name": "Braza", "symbol": "BRZ",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double initialize, got %d", rec.Code)
	}
}

func TestTransferFlow(t *testing.T) {
	router := newLedgerRouter(t)
	initializeLedger(t, router)
	onboard(t, router, "alice")
	onboard(t, router, "bob")

	// Admin distribution seeds alice without fees.
	rec := do(t, router, http.MethodPost, "/token/transfer", adminAddress, map[string]any{
		"to": "alice", "amount": 10_000_000_000, "context": "admin_distribution",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seeding alice: got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, router, http.MethodPost, "/token/transfer", "alice", map[string]any{
		"to": "bob", "amount": 1_000_000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer: got %d: %s", rec.Code, rec.Body)
	}

	var got amountResponse
	rec = do(t, router, http.MethodGet, "/token/balance/bob", "", nil)
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if got.Amount != 999_500 {
		t.Fatalf("expected bob to receive the net of a 5bp fee, got %d", got.Amount)
	}

	t.Run("missing caller is rejected", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/token/transfer", "", map[string]any{
			"to": "bob", "amount": 100,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 without a caller, got %d", rec.Code)
		}
	})

	t.Run("malformed caller header is rejected", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/token/transfer", "not a valid addr!", map[string]any{
			"to": "bob", "amount": 100,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for a malformed caller, got %d", rec.Code)
		}
	})

	t.Run("negative amount is rejected", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/token/transfer", "alice", map[string]any{
			"to": "bob", "amount": -5,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for a negative amount, got %d", rec.Code)
		}
	})

	t.Run("unknown json fields are rejected", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/token/transfer", "alice", map[string]any{
			"to": "bob", "amount": 100, "fee_override": 0,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for unknown fields, got %d", rec.Code)
		}
	})
}

func TestComplianceRejectionStatuses(t *testing.T) {
	router := newLedgerRouter(t)
	initializeLedger(t, router)
	onboard(t, router, "alice")
	onboard(t, router, "bob")

	rec := do(t, router, http.MethodPost, "/token/transfer", adminAddress, map[string]any{
		"to": "alice", "amount": 10_000_000_000, "context": "admin_distribution",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seeding alice: got %d: %s", rec.Code, rec.Body)
	}

	t.Run("blacklisted sender maps to 403", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/compliance/blacklist", adminAddress, map[string]any{"address": "alice"})
		if rec.Code != http.StatusOK {
			t.Fatalf("blacklisting: got %d", rec.Code)
		}

		rec = do(t, router, http.MethodPost, "/token/transfer", "alice", map[string]any{"to": "bob", "amount": 100})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for a blacklisted sender, got %d: %s", rec.Code, rec.Body)
		}

		rec = do(t, router, http.MethodPost, "/compliance/unblacklist", adminAddress, map[string]any{"address": "alice"})
		if rec.Code != http.StatusOK {
			t.Fatalf("unblacklisting: got %d", rec.Code)
		}
	})

	t.Run("daily limit maps to 429", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/compliance/daily-limit", adminAddress, map[string]any{
			"address": "alice", "limit": 1_000,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("setting limit: got %d", rec.Code)
		}

		rec = do(t, router, http.MethodPost, "/token/transfer", "alice", map[string]any{"to": "bob", "amount": 2_000})
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429 over the daily limit, got %d: %s", rec.Code, rec.Body)
		}
	})

	t.Run("compliance record is readable", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/compliance/alice", adminAddress, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got complianceResponse
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode compliance: %v", err)
		}
		if got.Country != "BR" || got.KYCLevel != 3 || got.DailyLimit != 1_000 {
			t.Fatalf("unexpected record: %+v", got)
		}
	})

	t.Run("non-admin compliance mutation maps to 403", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/compliance/kyc", "alice", map[string]any{
			"address": "bob", "level": 1,
		})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for a non-admin, got %d", rec.Code)
		}
	})
}

func TestVestingFlow(t *testing.T) {
	router := newLedgerRouter(t)
	initializeLedger(t, router)
	onboard(t, router, "bob")

	rec := do(t, router, http.MethodPost, "/vesting", adminAddress, map[string]any{
		"beneficiary": "bob",
		"total":       100_000_000_000,
		"start":       0,
		"cliff":       0,
		"duration":    1,
		"revocable":   true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("creating schedule: got %d: %s", rec.Code, rec.Body)
	}
	var sched scheduleResponse
	if err := json.NewDecoder(rec.Body).Decode(&sched); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if sched.Beneficiary != "bob" || sched.Total != 100_000_000_000 {
		t.Fatalf("unexpected schedule: %+v", sched)
	}

	// The short schedule above has fully vested by now.
	rec = do(t, router, http.MethodGet, fmt.Sprintf("/vesting/bob/%d/releasable", sched.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("releasable: got %d", rec.Code)
	}
	var releasable amountResponse
	if err := json.NewDecoder(rec.Body).Decode(&releasable); err != nil {
		t.Fatalf("decode releasable: %v", err)
	}
	if releasable.Amount != 100_000_000_000 {
		t.Fatalf("expected the full total releasable, got %d", releasable.Amount)
	}

	rec = do(t, router, http.MethodPost, "/vesting/bob/release", "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("release: got %d: %s", rec.Code, rec.Body)
	}

	t.Run("a second release maps to 422", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/vesting/bob/release", "bob", nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 with nothing to release, got %d: %s", rec.Code, rec.Body)
		}
	})

	t.Run("revoking a released schedule maps to 422", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, fmt.Sprintf("/vesting/bob/%d/revoke", sched.ID), adminAddress, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 revoking a completed schedule, got %d: %s", rec.Code, rec.Body)
		}
	})

	t.Run("listing shows the completed schedule", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/vesting/bob", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var list []scheduleResponse
		if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list) != 1 || list[0].State != "completed" {
			t.Fatalf("unexpected schedules: %+v", list)
		}
	})
}

func TestAdminLifecycleOverHTTP(t *testing.T) {
	router := newLedgerRouter(t)
	initializeLedger(t, router)
	onboard(t, router, "alice")

	rec := do(t, router, http.MethodPost, "/admin/pause", adminAddress, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/token/transfer", adminAddress, map[string]any{
		"to": "alice", "amount": 100, "context": "admin_distribution",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while paused, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, router, http.MethodPost, "/admin/unpause", adminAddress, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unpause: got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/admin/transfer-ownership", adminAddress, map[string]any{
		"new_admin": "admin-2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer ownership: got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/admin/pause", adminAddress, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for the former admin, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/admin/pause", "admin-2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the new admin to pause, got %d", rec.Code)
	}
}
