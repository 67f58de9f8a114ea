// Package ports defines the storage substrate boundary consumed by the
// ledger services. The substrate provides durable keyed records with
// TTL-refresh-on-touch semantics; the services own every invariant above
// that (supply conservation, locked-vs-available accounting, compliance
// windows, schedule ceilings).
package ports

import (
	"context"

	"braza/internal/ledger/events"
	"braza/internal/ledger/models"
	"braza/pkg/domain"
)

// BalanceStore holds per-account raw balances. Absence reads as zero.
type BalanceStore interface {
	// Balance returns the raw balance for an address.
	Balance(ctx context.Context, addr domain.Address) (domain.Amount, error)

	// SetBalance writes the raw balance; writing zero may prune the entry.
	SetBalance(ctx context.Context, addr domain.Address, amount domain.Amount) error
}

// AllowanceStore holds (owner, spender) approvals. Absence reads as the zero
// record; an expired record reads as zero without requiring a write.
type AllowanceStore interface {
	// Allowance returns the stored record for an (owner, spender) pair.
	Allowance(ctx context.Context, owner, spender domain.Address) (models.AllowanceRecord, error)

	// SetAllowance overwrites the record; a zero amount removes the entry.
	SetAllowance(ctx context.Context, owner, spender domain.Address, rec models.AllowanceRecord) error
}

// VestingStore holds per-beneficiary schedule arenas. IDs are dense per
// address; the services enforce the per-address and global ceilings.
type VestingStore interface {
	// ScheduleCount returns the number of schedules ever created for addr.
	ScheduleCount(ctx context.Context, addr domain.Address) (uint32, error)

	// Schedule returns one schedule; sentinel.ErrNotFound if absent.
	Schedule(ctx context.Context, addr domain.Address, id domain.ScheduleID) (models.VestingSchedule, error)

	// PutSchedule inserts or replaces a schedule, bumping the per-address
	// count when the ID is new.
	PutSchedule(ctx context.Context, sched models.VestingSchedule) error

	// Schedules lists all schedules for an address in ID order.
	Schedules(ctx context.Context, addr domain.Address) ([]models.VestingSchedule, error)
}

// ComplianceStore holds per-address gating records and the country
// allow-list.
type ComplianceStore interface {
	// Compliance returns the record for an address; absence reads as the
	// zero record (no KYC, no country, zero risk), never an error.
	Compliance(ctx context.Context, addr domain.Address) (models.ComplianceRecord, error)

	// PutCompliance inserts or replaces the record.
	PutCompliance(ctx context.Context, rec models.ComplianceRecord) error

	// CountryAllowed reports membership in the allow-list.
	CountryAllowed(ctx context.Context, code string) (bool, error)

	// SetCountryAllowed adds or removes a country from the allow-list.
	SetCountryAllowed(ctx context.Context, code string, allowed bool) error
}

// StateStore holds the singletons: supply counters, admin configuration,
// token metadata, and the global schedule counter.
type StateStore interface {
	TotalSupply(ctx context.Context) (domain.Amount, error)
	SetTotalSupply(ctx context.Context, amount domain.Amount) error

	// LockedTotal is the sum of all unreleased vesting remainders; the
	// circulating supply is TotalSupply minus this counter.
	LockedTotal(ctx context.Context) (domain.Amount, error)
	SetLockedTotal(ctx context.Context, amount domain.Amount) error

	GlobalScheduleCount(ctx context.Context) (uint32, error)
	SetGlobalScheduleCount(ctx context.Context, count uint32) error

	// AdminConfig returns sentinel.ErrNotFound before initialization.
	AdminConfig(ctx context.Context) (models.AdminConfig, error)
	PutAdminConfig(ctx context.Context, cfg models.AdminConfig) error

	// Metadata returns sentinel.ErrNotFound before initialization.
	Metadata(ctx context.Context) (models.TokenMetadata, error)
	PutMetadata(ctx context.Context, meta models.TokenMetadata) error
}

// EventStore is the transactional event sink plus the outbox the fan-out
// worker drains after commit.
type EventStore interface {
	events.Sink

	// UnpublishedEvents returns up to limit committed events that have not
	// been handed to an external publisher yet, oldest first.
	UnpublishedEvents(ctx context.Context, limit int) ([]events.Event, error)

	// MarkPublished acknowledges external delivery.
	MarkPublished(ctx context.Context, ids []string) error
}

// Substrate is the complete storage boundary. Run executes fn as one unit
// of work: every write inside fn commits together or not at all. The host
// guarantees a single top-level invocation at a time; Run additionally
// serializes callers so that guarantee holds in-process.
type Substrate interface {
	BalanceStore
	AllowanceStore
	VestingStore
	ComplianceStore
	StateStore
	EventStore

	Run(ctx context.Context, fn func(ctx context.Context) error) error
}
