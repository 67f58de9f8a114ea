package admin

import (
	"context"
	"errors"

	"braza/internal/ledger/models"
	"braza/internal/ledger/ports"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
	"braza/pkg/platform/sentinel"
)

// Load reads the admin configuration, translating absence into the
// not-initialized domain error every entry point reports before bootstrap.
func Load(ctx context.Context, store ports.StateStore) (models.AdminConfig, error) {
	cfg, err := store.AdminConfig(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return cfg, dErrors.New(dErrors.CodeNotInitialized, "ledger is not initialized")
	}
	if err != nil {
		return cfg, dErrors.Wrap(err, dErrors.CodeInternal, "load admin config")
	}
	return cfg, nil
}

// Require is the single authorization predicate every privileged operation
// goes through.
func Require(cfg models.AdminConfig, caller domain.Address) error {
	if caller.IsNil() || caller != cfg.Admin {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the admin")
	}
	return nil
}

// RequireUnpaused rejects transfer-class operations while the ledger is
// paused.
func RequireUnpaused(cfg models.AdminConfig) error {
	if cfg.Paused {
		return dErrors.New(dErrors.CodeContractPaused, "ledger is paused")
	}
	return nil
}
