package compliance

import (
	"braza/internal/ledger/models"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
)

// RiskThreshold blocks outbound transfers at and above this score. Setting
// a score at or above it also auto-blacklists the address; RiskTooHigh
// still surfaces when an admin unblacklists an address whose score stayed
// high.
const RiskThreshold = 80

// Per-KYC-level daily spend caps in bra. KYCNone cannot spend at all;
// KYCAdvanced is uncapped.
var dailyCaps = map[models.KYCLevel]domain.Amount{
	models.KYCNone:         0,
	models.KYCBasic:        1_000 * domain.BraPerToken,
	models.KYCIntermediate: 100_000 * domain.BraPerToken,
	models.KYCAdvanced:     domain.MaxAmount,
}

// DailyCap returns the daily spend cap for a record: the admin override
// when set, otherwise the KYC-level cap.
func DailyCap(rec models.ComplianceRecord) domain.Amount {
	if rec.DailyLimitOverride > 0 {
		return rec.DailyLimitOverride
	}
	return dailyCaps[rec.KYCLevel]
}

// RolledOver returns the record with its daily counter reset if the
// compliance day containing now has moved past the stored window. The
// reset is lazy: it happens on the first check after the window elapses.
func RolledOver(rec models.ComplianceRecord, now domain.Sequence) models.ComplianceRecord {
	if now.WindowStart() > rec.DailyWindowStart {
		rec.DailyWindowStart = now.WindowStart()
		rec.DailySpent = 0
	}
	return rec
}

// CheckSender applies the full outbound rule chain to an already
// rolled-over record. Rule order is fixed and observable to callers:
//
//  1. Blacklisted — hard block on the address
//  2. CountryNotAllowed — compliance by default: no country set means denied
//  3. RiskTooHigh — score at or above the threshold
//  4. DailyLimitExceeded — spent plus this amount would cross the cap
func CheckSender(rec models.ComplianceRecord, amount domain.Amount, countryAllowed bool) error {
	if rec.Blacklisted {
		return dErrors.New(dErrors.CodeBlacklisted, "sender is blacklisted")
	}
	if !countryAllowed {
		return dErrors.New(dErrors.CodeCountryNotAllowed, "sender country is not on the allow-list")
	}
	if rec.RiskScore >= RiskThreshold {
		return dErrors.New(dErrors.CodeRiskTooHigh, "sender risk score exceeds the threshold")
	}
	limit := DailyCap(rec)
	spent, err := rec.DailySpent.CheckedAdd(amount)
	if err != nil || spent > limit {
		return dErrors.New(dErrors.CodeDailyLimitExceeded, "transfer exceeds the daily limit")
	}
	return nil
}

// CheckRecipient applies the inbound subset: blacklist and country only.
// Daily limits and risk scores gate outbound movement, not receipt.
func CheckRecipient(rec models.ComplianceRecord, countryAllowed bool) error {
	if rec.Blacklisted {
		return dErrors.New(dErrors.CodeBlacklisted, "recipient is blacklisted")
	}
	if !countryAllowed {
		return dErrors.New(dErrors.CodeCountryNotAllowed, "recipient country is not on the allow-list")
	}
	return nil
}

// CheckBurn applies the burn subset: a blacklisted address cannot destroy
// its own holdings.
func CheckBurn(rec models.ComplianceRecord) error {
	if rec.Blacklisted {
		return dErrors.New(dErrors.CodeBlacklisted, "address is blacklisted")
	}
	return nil
}
