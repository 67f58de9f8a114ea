package handler

import (
	"braza/internal/ledger/models"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
)

func parseAddress(field, raw string) (domain.Address, error) {
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		return "", dErrors.Newf(dErrors.CodeInvalidArgument, "invalid %s: %v", field, err)
	}
	return addr, nil
}

func parseAmount(raw int64) (domain.Amount, error) {
	if raw < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, "amount must not be negative")
	}
	return domain.Amount(raw), nil
}

type initializeRequest struct {
	Admin        string `json:"admin"`
	FeeCollector string `json:"fee_collector"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
}

type transferRequest struct {
	To      string `json:"to"`
	Amount  int64  `json:"amount"`
	Context string `json:"context,omitempty"`
}

type transferFromRequest struct {
	Owner   string `json:"owner"`
	To      string `json:"to"`
	Amount  int64  `json:"amount"`
	Context string `json:"context,omitempty"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  int64  `json:"amount"`
	Expiry  uint64 `json:"expiry,omitempty"`
}

type mintRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type burnRequest struct {
	Amount int64 `json:"amount"`
}

type forceTransferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type forceBurnRequest struct {
	From   string `json:"from"`
	Amount int64  `json:"amount"`
}

type createVestingRequest struct {
	Beneficiary string `json:"beneficiary"`
	Total       int64  `json:"total"`
	Start       uint64 `json:"start"`
	Cliff       uint64 `json:"cliff"`
	Duration    uint64 `json:"duration"`
	Revocable   bool   `json:"revocable"`
}

type transferOwnershipRequest struct {
	NewAdmin string `json:"new_admin"`
}

type feeCollectorRequest struct {
	Collector string `json:"collector"`
}

type setKYCRequest struct {
	Address string `json:"address"`
	Level   uint32 `json:"level"`
}

type setCountryRequest struct {
	Address string `json:"address"`
	Country string `json:"country"`
}

type setRiskRequest struct {
	Address string `json:"address"`
	Score   uint32 `json:"score"`
}

type setDailyLimitRequest struct {
	Address string `json:"address"`
	Limit   int64  `json:"limit"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type countryRequest struct {
	Country string `json:"country"`
}

func (r transferRequest) transferContext() models.TransferContext {
	return models.TransferContext(r.Context)
}

func (r transferFromRequest) transferContext() models.TransferContext {
	return models.TransferContext(r.Context)
}
