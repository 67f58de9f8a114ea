// Package models holds the persisted record types of the ledger. Records are
// plain data; rule evaluation lives in the services and the math helpers stay
// on the types so invariants have one home.
package models

import (
	"braza/pkg/domain"
)

// TokenMetadata is written once at initialization and never mutated.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals uint32
}

// AdminConfig is the singleton controlling privileged access. Only the
// current admin may mutate admin-scoped state.
type AdminConfig struct {
	Admin        domain.Address
	FeeCollector domain.Address
	Paused       bool
}

// SupplyStats is the read model for supply queries.
type SupplyStats struct {
	Total       domain.Amount `json:"total"`
	Locked      domain.Amount `json:"locked"`
	Circulating domain.Amount `json:"circulating"`
	Max         domain.Amount `json:"max"`
}

// KYCLevel orders identity-verification tiers. Higher levels unlock higher
// daily caps.
type KYCLevel uint32

const (
	KYCNone KYCLevel = iota
	KYCBasic
	KYCIntermediate
	KYCAdvanced
)

// IsValid reports whether the level is a known tier.
func (l KYCLevel) IsValid() bool {
	return l <= KYCAdvanced
}

// ComplianceRecord is the per-address gating state consulted before every
// transfer, mint, and burn.
type ComplianceRecord struct {
	Address          domain.Address
	KYCLevel         KYCLevel
	CountryCode      string
	RiskScore        uint32
	Blacklisted      bool
	DailySpent       domain.Amount
	DailyWindowStart domain.Sequence
	// DailyLimitOverride replaces the KYC-tier cap when positive.
	DailyLimitOverride domain.Amount
}

// AllowanceRecord is the approved amount for one (owner, spender) pair.
// Absence reads as zero; expiry is evaluated lazily on read so an expired
// allowance costs no write.
type AllowanceRecord struct {
	Amount domain.Amount
	Expiry domain.Sequence
}

// ValueAt returns the effective allowance at the given ledger sequence.
func (a AllowanceRecord) ValueAt(now domain.Sequence) domain.Amount {
	if a.Expiry != 0 && now > a.Expiry {
		return 0
	}
	return a.Amount
}

// TransferContext classifies a transfer for fee purposes. The context
// overrides the holding tier when it names a flat rate.
type TransferContext string

const (
	ContextDefault            TransferContext = "default"
	ContextExchangeToExchange TransferContext = "exchange_to_exchange"
	ContextLocalCommerce      TransferContext = "local_commerce"
	ContextAdminDistribution  TransferContext = "admin_distribution"
)

// IsValid reports whether the context is a known classification.
func (c TransferContext) IsValid() bool {
	switch c {
	case ContextDefault, ContextExchangeToExchange, ContextLocalCommerce, ContextAdminDistribution:
		return true
	}
	return false
}
