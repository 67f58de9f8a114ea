package handler

import (
	"braza/internal/ledger/models"
	"braza/pkg/domain"
)

type amountResponse struct {
	Address string `json:"address,omitempty"`
	Amount  int64  `json:"amount"`
}

type allowanceResponse struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  int64  `json:"amount"`
}

type metadataResponse struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint32 `json:"decimals"`
}

type scheduleResponse struct {
	ID          uint32 `json:"id"`
	Beneficiary string `json:"beneficiary"`
	Total       int64  `json:"total"`
	Released    int64  `json:"released"`
	Start       uint64 `json:"start"`
	Cliff       uint64 `json:"cliff"`
	Duration    uint64 `json:"duration"`
	Revocable   bool   `json:"revocable"`
	State       string `json:"state"`
}

func fromSchedule(sched models.VestingSchedule, now domain.Sequence) scheduleResponse {
	return scheduleResponse{
		ID:          uint32(sched.ID),
		Beneficiary: sched.Beneficiary.String(),
		Total:       sched.Total.Int64(),
		Released:    sched.Released.Int64(),
		Start:       uint64(sched.StartSeq),
		Cliff:       uint64(sched.CliffSeq),
		Duration:    uint64(sched.Duration),
		Revocable:   sched.Revocable,
		State:       string(sched.StateAt(now)),
	}
}

type complianceResponse struct {
	Address     string `json:"address"`
	KYCLevel    uint32 `json:"kyc_level"`
	Country     string `json:"country,omitempty"`
	RiskScore   uint32 `json:"risk_score"`
	Blacklisted bool   `json:"blacklisted"`
	DailySpent  int64  `json:"daily_spent"`
	DailyLimit  int64  `json:"daily_limit"`
}

type statusResponse struct {
	Status string `json:"status"`
}

var statusOK = statusResponse{Status: "ok"}
