// Package vesting manages linear vesting schedules with cliffs. Schedule
// totals are credited to the beneficiary's raw balance at creation and held
// back from spending through the locked amount; release converts vested
// amounts into spendable balance without moving tokens.
package vesting

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"braza/internal/ledger/admin"
	"braza/internal/ledger/events"
	"braza/internal/ledger/guard"
	"braza/internal/ledger/metrics"
	"braza/internal/ledger/models"
	"braza/internal/ledger/ports"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
	"braza/pkg/platform/sentinel"
	"braza/pkg/requestcontext"
)

// Storage ceilings. Schedules are persistent keys the host charges rent
// for, so their count is bounded here, not by the storage layer.
const (
	MaxSchedulesPerAddress = 50
	MaxSchedulesGlobal     = 10_000
	MinVestingAmount       = domain.BraPerToken // one whole token
)

// Locked sums the locked remainder of every non-terminal schedule for an
// address. Subtracted from the raw balance everywhere spendable balance is
// needed.
func Locked(ctx context.Context, store ports.VestingStore, addr domain.Address) (domain.Amount, error) {
	scheds, err := store.Schedules(ctx, addr)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "list vesting schedules")
	}
	var locked domain.Amount
	for _, sched := range scheds {
		locked, err = locked.CheckedAdd(sched.LockedRemainder())
		if err != nil {
			return 0, err
		}
	}
	return locked, nil
}

// Service mutates vesting schedules.
type Service struct {
	substrate ports.Substrate
	guard     *guard.Guard
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithClock injects a time source for sequence derivation.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds the vesting service.
func New(substrate ports.Substrate, g *guard.Guard, m *metrics.Metrics, opts ...Option) (*Service, error) {
	if substrate == nil {
		return nil, errors.New("vesting: substrate is required")
	}
	if g == nil {
		return nil, errors.New("vesting: guard is required")
	}
	if m == nil {
		return nil, errors.New("vesting: metrics are required")
	}
	s := &Service{
		substrate: substrate,
		guard:     g,
		metrics:   m,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Service) seq(ctx context.Context) domain.Sequence {
	if seq, ok := requestcontext.SequenceFrom(ctx); ok {
		return seq
	}
	return domain.SequenceAt(s.clock())
}

// CreateParams carries the admin inputs for a new schedule.
type CreateParams struct {
	Beneficiary domain.Address
	Total       domain.Amount
	Start       domain.Sequence
	Cliff       domain.Sequence
	Duration    domain.Sequence
	Revocable   bool
}

// Create funds a new schedule out of the admin's spendable balance. The
// total lands in the beneficiary's raw balance immediately but stays locked
// until released.
func (s *Service) Create(ctx context.Context, params CreateParams) (models.VestingSchedule, error) {
	var created models.VestingSchedule
	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return created, err
	}
	defer release()

	if params.Beneficiary.IsNil() {
		return created, dErrors.New(dErrors.CodeInvalidArgument, "beneficiary address is required")
	}
	if params.Total < MinVestingAmount {
		return created, dErrors.New(dErrors.CodeInvalidArgument, "vesting total is below the minimum of one token")
	}
	if params.Duration == 0 {
		return created, dErrors.New(dErrors.CodeInvalidArgument, "vesting duration must be positive")
	}

	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := admin.Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := admin.Require(cfg, caller); err != nil {
			return err
		}
		if err := admin.RequireUnpaused(cfg); err != nil {
			return err
		}

		count, err := s.substrate.ScheduleCount(ctx, params.Beneficiary)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "count schedules")
		}
		if count >= MaxSchedulesPerAddress {
			return dErrors.New(dErrors.CodeLimitExceeded, "address has reached the schedule ceiling")
		}
		global, err := s.substrate.GlobalScheduleCount(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "count global schedules")
		}
		if global >= MaxSchedulesGlobal {
			return dErrors.New(dErrors.CodeLimitExceeded, "global schedule ceiling reached")
		}

		adminBalance, err := s.substrate.Balance(ctx, cfg.Admin)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read admin balance")
		}
		adminLocked, err := Locked(ctx, s.substrate, cfg.Admin)
		if err != nil {
			return err
		}
		if params.Total > adminBalance-adminLocked {
			return dErrors.New(dErrors.CodeInsufficientSpendable, "admin spendable balance cannot fund the schedule")
		}
		if err := s.substrate.SetBalance(ctx, cfg.Admin, adminBalance-params.Total); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "debit admin")
		}
		beneficiaryBalance, err := s.substrate.Balance(ctx, params.Beneficiary)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read beneficiary balance")
		}
		credited, err := beneficiaryBalance.CheckedAdd(params.Total)
		if err != nil {
			return err
		}
		if err := s.substrate.SetBalance(ctx, params.Beneficiary, credited); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "credit beneficiary")
		}

		created = models.VestingSchedule{
			ID:          domain.ScheduleID(count),
			Beneficiary: params.Beneficiary,
			Total:       params.Total,
			StartSeq:    params.Start,
			CliffSeq:    params.Start + params.Cliff,
			Duration:    params.Duration,
			Revocable:   params.Revocable,
		}
		if err := s.substrate.PutSchedule(ctx, created); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write schedule")
		}
		if err := s.substrate.SetGlobalScheduleCount(ctx, global+1); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "bump global schedule count")
		}
		lockedTotal, err := s.substrate.LockedTotal(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read locked total")
		}
		lockedTotal, err = lockedTotal.CheckedAdd(params.Total)
		if err != nil {
			return err
		}
		if err := s.substrate.SetLockedTotal(ctx, lockedTotal); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write locked total")
		}

		event := events.New(events.TopicVestingCreated, seq).
			WithActor(caller).
			WithSubject(params.Beneficiary).
			WithAmount(params.Total).
			WithMeta("schedule_id", strconv.FormatUint(uint64(created.ID), 10)).
			WithMeta("revocable", strconv.FormatBool(params.Revocable))
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("create_vesting", outcome(err))
	if err != nil {
		return models.VestingSchedule{}, err
	}
	s.logger.Info("vesting schedule created",
		"beneficiary", params.Beneficiary,
		"schedule_id", created.ID,
		"total", created.Total)
	return created, nil
}

// Release converts every vested-but-unreleased amount for the caller's
// schedules into spendable balance. Idempotent within one sequence: a
// second call finds nothing and fails with NothingToRelease.
func (s *Service) Release(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return 0, err
	}
	defer release()

	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	var released domain.Amount
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := admin.Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := admin.RequireUnpaused(cfg); err != nil {
			return err
		}
		if caller != addr && caller != cfg.Admin {
			return dErrors.New(dErrors.CodeUnauthorized, "only the beneficiary or the admin may release")
		}

		scheds, err := s.substrate.Schedules(ctx, addr)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "list schedules")
		}
		released = 0
		for _, sched := range scheds {
			releasable := sched.ReleasableAt(seq)
			if releasable <= 0 {
				continue
			}
			sched.Released += releasable
			if err := s.substrate.PutSchedule(ctx, sched); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "write schedule")
			}
			released, err = released.CheckedAdd(releasable)
			if err != nil {
				return err
			}
		}
		if released == 0 {
			return dErrors.New(dErrors.CodeNothingToRelease, "no vested amount is releasable")
		}

		lockedTotal, err := s.substrate.LockedTotal(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read locked total")
		}
		lockedTotal, err = lockedTotal.CheckedSub(released)
		if err != nil {
			return err
		}
		if err := s.substrate.SetLockedTotal(ctx, lockedTotal); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write locked total")
		}

		event := events.New(events.TopicVestingReleased, seq).
			WithActor(caller).
			WithSubject(addr).
			WithAmount(released)
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("release_vested", outcome(err))
	if err != nil {
		return 0, err
	}
	s.metrics.VestingReleases.Inc()
	s.logger.Info("vested amount released", "beneficiary", addr, "amount", released)
	return released, nil
}

// Revoke terminates a revocable schedule. The unvested remainder moves back
// to the admin; the vested-but-unreleased part becomes spendable for the
// beneficiary; the released amount freezes.
func (s *Service) Revoke(ctx context.Context, addr domain.Address, id domain.ScheduleID) (domain.Amount, error) {
	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return 0, err
	}
	defer release()

	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	var reclaimed domain.Amount
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := admin.Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := admin.Require(cfg, caller); err != nil {
			return err
		}
		if err := admin.RequireUnpaused(cfg); err != nil {
			return err
		}

		sched, err := s.substrate.Schedule(ctx, addr, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "vesting schedule not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read schedule")
		}
		if sched.Revoked {
			return dErrors.New(dErrors.CodeAlreadyRevoked, "schedule is already revoked")
		}
		if !sched.Revocable {
			return dErrors.New(dErrors.CodeNotRevocable, "schedule is not revocable")
		}
		if sched.Released >= sched.Total {
			return dErrors.New(dErrors.CodeNotRevocable, "schedule is already fully released")
		}

		unlocked := sched.UnlockedAt(seq)
		reclaimed = sched.Total - unlocked
		lockedContribution := sched.LockedRemainder()

		if reclaimed > 0 {
			beneficiaryBalance, err := s.substrate.Balance(ctx, addr)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read beneficiary balance")
			}
			debited, err := beneficiaryBalance.CheckedSub(reclaimed)
			if err != nil {
				return err
			}
			if err := s.substrate.SetBalance(ctx, addr, debited); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "debit beneficiary")
			}
			adminBalance, err := s.substrate.Balance(ctx, cfg.Admin)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read admin balance")
			}
			credited, err := adminBalance.CheckedAdd(reclaimed)
			if err != nil {
				return err
			}
			if err := s.substrate.SetBalance(ctx, cfg.Admin, credited); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "credit admin")
			}
		}

		sched.Revoked = true
		if err := s.substrate.PutSchedule(ctx, sched); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write schedule")
		}

		lockedTotal, err := s.substrate.LockedTotal(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read locked total")
		}
		lockedTotal, err = lockedTotal.CheckedSub(lockedContribution)
		if err != nil {
			return err
		}
		if err := s.substrate.SetLockedTotal(ctx, lockedTotal); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write locked total")
		}

		event := events.New(events.TopicVestingRevoked, seq).
			WithActor(caller).
			WithSubject(addr).
			WithOther(cfg.Admin).
			WithAmount(reclaimed).
			WithMeta("schedule_id", strconv.FormatUint(uint64(id), 10))
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("revoke_vesting", outcome(err))
	if err != nil {
		return 0, err
	}
	s.logger.Info("vesting schedule revoked",
		"beneficiary", addr,
		"schedule_id", id,
		"reclaimed", reclaimed)
	return reclaimed, nil
}

// Schedules lists every schedule for an address with its current state.
func (s *Service) Schedules(ctx context.Context, addr domain.Address) ([]models.VestingSchedule, error) {
	return s.substrate.Schedules(ctx, addr)
}

// Releasable previews what a release at the current sequence would move.
func (s *Service) Releasable(ctx context.Context, addr domain.Address, id domain.ScheduleID) (domain.Amount, error) {
	sched, err := s.substrate.Schedule(ctx, addr, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return 0, dErrors.New(dErrors.CodeNotFound, "vesting schedule not found")
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read schedule")
	}
	return sched.ReleasableAt(s.seq(ctx)), nil
}

// LockedAmount reports the address's total locked amount at the current
// sequence.
func (s *Service) LockedAmount(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	return Locked(ctx, s.substrate, addr)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
