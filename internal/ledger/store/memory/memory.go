// Package memory provides an in-process Substrate for tests and
// single-node deployments. A mutex serializes units of work; Run snapshots
// the whole state bag and restores it when fn fails, so a rolled-back
// invocation leaves no partial writes behind.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"braza/internal/ledger/events"
	"braza/internal/ledger/models"
	"braza/internal/ledger/ports"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
	"braza/pkg/platform/sentinel"
)

type allowanceKey struct {
	owner   domain.Address
	spender domain.Address
}

type outboxEntry struct {
	event     events.Event
	published bool
}

// ledgerState is the whole world. Every field must be deep-copied by clone
// or rollback breaks silently.
type ledgerState struct {
	balances   map[domain.Address]domain.Amount
	allowances map[allowanceKey]models.AllowanceRecord
	schedules  map[domain.Address][]models.VestingSchedule
	compliance map[domain.Address]models.ComplianceRecord
	countries  map[string]struct{}

	totalSupply     domain.Amount
	lockedTotal     domain.Amount
	globalSchedules uint32
	adminConfig     *models.AdminConfig
	metadata        *models.TokenMetadata

	outbox []outboxEntry
}

func newLedgerState() ledgerState {
	return ledgerState{
		balances:   make(map[domain.Address]domain.Amount),
		allowances: make(map[allowanceKey]models.AllowanceRecord),
		schedules:  make(map[domain.Address][]models.VestingSchedule),
		compliance: make(map[domain.Address]models.ComplianceRecord),
		countries:  make(map[string]struct{}),
	}
}

func (s ledgerState) clone() ledgerState {
	out := ledgerState{
		balances:        maps.Clone(s.balances),
		allowances:      maps.Clone(s.allowances),
		schedules:       make(map[domain.Address][]models.VestingSchedule, len(s.schedules)),
		compliance:      maps.Clone(s.compliance),
		countries:       maps.Clone(s.countries),
		totalSupply:     s.totalSupply,
		lockedTotal:     s.lockedTotal,
		globalSchedules: s.globalSchedules,
		outbox:          slices.Clone(s.outbox),
	}
	for addr, scheds := range s.schedules {
		out.schedules[addr] = slices.Clone(scheds)
	}
	if s.adminConfig != nil {
		cfg := *s.adminConfig
		out.adminConfig = &cfg
	}
	if s.metadata != nil {
		meta := *s.metadata
		out.metadata = &meta
	}
	return out
}

// Store implements ports.Substrate in memory. runMu serializes units of
// work; mu guards the state bag itself so plain reads stay race-free while
// a unit of work is in flight.
type Store struct {
	runMu sync.Mutex
	mu    sync.Mutex
	state ledgerState
}

var _ ports.Substrate = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: newLedgerState()}
}

type runKey struct{}

// Run executes fn as one unit of work. The state bag is snapshotted up
// front and restored wholesale if fn returns an error or panics. Units of
// work never nest; a nested call fails instead of deadlocking.
func (s *Store) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(runKey{}) != nil {
		return dErrors.New(dErrors.CodeInternal, "nested unit of work")
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unit of work panicked: %v", r))
		}
		if err != nil {
			s.mu.Lock()
			s.state = snapshot
			s.mu.Unlock()
		}
	}()
	return fn(context.WithValue(ctx, runKey{}, struct{}{}))
}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	defer s.lock()()
	return s.state.balances[addr], nil
}

func (s *Store) SetBalance(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	defer s.lock()()
	if amount == 0 {
		delete(s.state.balances, addr)
		return nil
	}
	s.state.balances[addr] = amount
	return nil
}

func (s *Store) Allowance(ctx context.Context, owner, spender domain.Address) (models.AllowanceRecord, error) {
	defer s.lock()()
	return s.state.allowances[allowanceKey{owner, spender}], nil
}

func (s *Store) SetAllowance(ctx context.Context, owner, spender domain.Address, rec models.AllowanceRecord) error {
	defer s.lock()()
	key := allowanceKey{owner, spender}
	if rec.Amount == 0 {
		delete(s.state.allowances, key)
		return nil
	}
	s.state.allowances[key] = rec
	return nil
}

func (s *Store) ScheduleCount(ctx context.Context, addr domain.Address) (uint32, error) {
	defer s.lock()()
	return uint32(len(s.state.schedules[addr])), nil
}

func (s *Store) Schedule(ctx context.Context, addr domain.Address, id domain.ScheduleID) (models.VestingSchedule, error) {
	defer s.lock()()
	scheds := s.state.schedules[addr]
	if int(id) >= len(scheds) {
		return models.VestingSchedule{}, sentinel.ErrNotFound
	}
	return scheds[id], nil
}

func (s *Store) PutSchedule(ctx context.Context, sched models.VestingSchedule) error {
	defer s.lock()()
	scheds := s.state.schedules[sched.Beneficiary]
	switch {
	case int(sched.ID) < len(scheds):
		scheds[sched.ID] = sched
	case int(sched.ID) == len(scheds):
		s.state.schedules[sched.Beneficiary] = append(scheds, sched)
	default:
		return dErrors.Newf(dErrors.CodeInternal, "schedule id %d skips %d existing", sched.ID, len(scheds))
	}
	return nil
}

func (s *Store) Schedules(ctx context.Context, addr domain.Address) ([]models.VestingSchedule, error) {
	defer s.lock()()
	return slices.Clone(s.state.schedules[addr]), nil
}

func (s *Store) Compliance(ctx context.Context, addr domain.Address) (models.ComplianceRecord, error) {
	defer s.lock()()
	if rec, ok := s.state.compliance[addr]; ok {
		return rec, nil
	}
	return models.ComplianceRecord{Address: addr}, nil
}

func (s *Store) PutCompliance(ctx context.Context, rec models.ComplianceRecord) error {
	defer s.lock()()
	s.state.compliance[rec.Address] = rec
	return nil
}

func (s *Store) CountryAllowed(ctx context.Context, code string) (bool, error) {
	defer s.lock()()
	_, ok := s.state.countries[code]
	return ok, nil
}

func (s *Store) SetCountryAllowed(ctx context.Context, code string, allowed bool) error {
	defer s.lock()()
	if allowed {
		s.state.countries[code] = struct{}{}
	} else {
		delete(s.state.countries, code)
	}
	return nil
}

func (s *Store) TotalSupply(ctx context.Context) (domain.Amount, error) {
	defer s.lock()()
	return s.state.totalSupply, nil
}

func (s *Store) SetTotalSupply(ctx context.Context, amount domain.Amount) error {
	defer s.lock()()
	s.state.totalSupply = amount
	return nil
}

func (s *Store) LockedTotal(ctx context.Context) (domain.Amount, error) {
	defer s.lock()()
	return s.state.lockedTotal, nil
}

func (s *Store) SetLockedTotal(ctx context.Context, amount domain.Amount) error {
	defer s.lock()()
	s.state.lockedTotal = amount
	return nil
}

func (s *Store) GlobalScheduleCount(ctx context.Context) (uint32, error) {
	defer s.lock()()
	return s.state.globalSchedules, nil
}

func (s *Store) SetGlobalScheduleCount(ctx context.Context, count uint32) error {
	defer s.lock()()
	s.state.globalSchedules = count
	return nil
}

func (s *Store) AdminConfig(ctx context.Context) (models.AdminConfig, error) {
	defer s.lock()()
	if s.state.adminConfig == nil {
		return models.AdminConfig{}, sentinel.ErrNotFound
	}
	return *s.state.adminConfig, nil
}

func (s *Store) PutAdminConfig(ctx context.Context, cfg models.AdminConfig) error {
	defer s.lock()()
	s.state.adminConfig = &cfg
	return nil
}

func (s *Store) Metadata(ctx context.Context) (models.TokenMetadata, error) {
	defer s.lock()()
	if s.state.metadata == nil {
		return models.TokenMetadata{}, sentinel.ErrNotFound
	}
	return *s.state.metadata, nil
}

func (s *Store) PutMetadata(ctx context.Context, meta models.TokenMetadata) error {
	defer s.lock()()
	s.state.metadata = &meta
	return nil
}

func (s *Store) Record(ctx context.Context, event events.Event) error {
	defer s.lock()()
	s.state.outbox = append(s.state.outbox, outboxEntry{event: event})
	return nil
}

func (s *Store) UnpublishedEvents(ctx context.Context, limit int) ([]events.Event, error) {
	defer s.lock()()
	var out []events.Event
	for _, entry := range s.state.outbox {
		if entry.published {
			continue
		}
		out = append(out, entry.event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, ids []string) error {
	defer s.lock()()
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	for i := range s.state.outbox {
		if _, ok := wanted[s.state.outbox[i].event.ID.String()]; ok {
			s.state.outbox[i].published = true
		}
	}
	return nil
}

// Events returns every recorded event in order, published or not. Test
// helper.
func (s *Store) Events() []events.Event {
	defer s.lock()()
	out := make([]events.Event, len(s.state.outbox))
	for i, entry := range s.state.outbox {
		out[i] = entry.event
	}
	return out
}
