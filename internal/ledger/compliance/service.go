// Package compliance gates transfers with KYC tiers, a country allow-list,
// risk scores, daily spend limits, and a blacklist. The rule chain itself
// is pure (rules.go); the service owns the admin-only mutators and the
// cached read path.
package compliance

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
	"braza/pkg/requestcontext"
)

// MaxRiskScore bounds the admin-assigned risk score.
const MaxRiskScore = 100

// Service mutates compliance state.
type Service struct {
	substrate ports.Substrate
	reader    ports.ComplianceStore
	guard     *guard.Guard
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithReader routes the read-only endpoints through a caching store. The
// mutators keep writing through the substrate inside the unit of work.
func WithReader(reader ports.ComplianceStore) Option {
	return func(s *Service) {
		if reader != nil {
			s.reader = reader
		}
	}
}

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

// New builds the compliance service.
func New(substrate ports.Substrate, g *guard.Guard, m *metrics.Metrics, opts ...Option) (*Service, error) {
	if substrate == nil {
		return nil, errors.New("compliance: substrate is required")
	}
	if g == nil {
		return nil, errors.New("compliance: guard is required")
	}
	if m == nil {
		return nil, errors.New("compliance: metrics are required")
	}
	s := &Service{
		substrate: substrate,
		reader:    substrate,
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

// mutate wraps one admin-only compliance mutation in the guard and a unit
// of work.
func (s *Service) mutate(ctx context.Context, op string, fn func(ctx context.Context, cfg models.AdminConfig) error) error {
	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	caller := requestcontext.Caller(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := admin.Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := admin.Require(cfg, caller); err != nil {
			return err
		}
		return fn(ctx, cfg)
	})
	s.metrics.RecordOperation(op, outcome(err))
	return err
}

// writeRecord persists a record through the reader so a caching layer
// invalidates itself, while staying inside the active unit of work.
func (s *Service) writeRecord(ctx context.Context, rec models.ComplianceRecord) error {
	if err := s.reader.PutCompliance(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write compliance record")
	}
	return nil
}

// SetKYC assigns a KYC level.
func (s *Service) SetKYC(ctx context.Context, addr domain.Address, level models.KYCLevel) error {
	if addr.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "address is required")
	}
	if !level.IsValid() {
		return dErrors.New(dErrors.CodeInvalidArgument, "invalid KYC level")
	}
	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	return s.mutate(ctx, "set_kyc", func(ctx context.Context, _ models.AdminConfig) error {
		rec, err := s.substrate.Compliance(ctx, addr)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read compliance record")
		}
		rec.KYCLevel = level
		if err := s.writeRecord(ctx, rec); err != nil {
			return err
		}
		event := events.New(events.TopicKYCSet, seq).
			WithActor(caller).
			WithSubject(addr).
			WithMeta("level", strconv.FormatUint(uint64(level), 10))
		return s.substrate.Record(ctx, event)
	})
}

// SetCountry assigns an ISO 3166-1 alpha-2 country code to an address.
func (s *Service) SetCountry(ctx context.Context, addr domain.Address, code string) error {
	if addr.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "address is required")
	}
	if !validCountryCode(code) {
		return dErrors.New(dErrors.CodeInvalidArgument, "country code must be two uppercase letters")
	}
	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	return s.mutate(ctx, "set_country", func(ctx context.Context, _ models.AdminConfig) error {
		rec, err := s.substrate.Compliance(ctx, addr)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read compliance record")
		}
		rec.CountryCode = code
		if err := s.writeRecord(ctx, rec); err != nil {
			return err
		}
		event := events.New(events.TopicCountrySet, seq).
			WithActor(caller).
			WithSubject(addr).
			WithMeta("country", code)
		return s.substrate.Record(ctx, event)
	})
}

// SetRiskScore assigns a 0-100 risk score. A score at or above the
// threshold auto-blacklists the address in the same unit of work.
func (s *Service) SetRiskScore(ctx context.Context, addr domain.Address, score uint32) error {
	if addr.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "address is required")
	}
	if score > MaxRiskScore {
		return dErrors.New(dErrors.CodeInvalidArgument, "risk score exceeds 100")
	}
	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	return s.mutate(ctx, "set_risk_score", func(ctx context.Context, _ models.AdminConfig) error {
		rec, err := s.substrate.Compliance(ctx, addr)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read compliance record")
		}
		rec.RiskScore = score
		autoBlacklisted := false
		if score >= RiskThreshold && !rec.Blacklisted {
			rec.Blacklisted = true
			autoBlacklisted = true
		}
		if err := s.writeRecord(ctx, rec); err != nil {
			return err
		}
		event := events.New(events.TopicRiskScoreSet, seq).
			WithActor(caller).
			WithSubject(addr).
			WithMeta("score", strconv.FormatUint(uint64(score), 10))
		if err := s.substrate.Record(ctx, event); err != nil {
			return err
		}
		if !autoBlacklisted {
			return nil
		}
		auto := events.New(events.TopicBlacklisted, seq).
			WithActor(caller).
			WithSubject(addr).
			WithMeta("reason", "risk_score")
		return s.substrate.Record(ctx, auto)
	})
}

// SetDailyLimit sets a per-address daily cap override. Zero restores the
// KYC-level cap.
func (s *Service) SetDailyLimit(ctx context.Context, addr domain.Address, limit domain.Amount) error {
	if addr.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "address is required")
	}
	if limit < 0 {
		return dErrors.New(dErrors.CodeInvalidArgument, "daily limit cannot be negative")
	}
	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	return s.mutate(ctx, "set_daily_limit", func(ctx context.Context, _ models.AdminConfig) error {
		rec, err := s.substrate.Compliance(ctx, addr)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read compliance record")
		}
		rec.DailyLimitOverride = limit
		if err := s.writeRecord(ctx, rec); err != nil {
			return err
		}
		event := events.New(events.TopicDailyLimitSet, seq).
			WithActor(caller).
			WithSubject(addr).
			WithAmount(limit)
		return s.substrate.Record(ctx, event)
	})
}

// Blacklist blocks an address from all outbound movement.
func (s *Service) Blacklist(ctx context.Context, addr domain.Address) error {
	return s.setBlacklisted(ctx, addr, true, events.TopicBlacklisted, "blacklist")
}

// Unblacklist lifts the block. The risk score is untouched, so a score at
// or above the threshold keeps gating transfers.
func (s *Service) Unblacklist(ctx context.Context, addr domain.Address) error {
	return s.setBlacklisted(ctx, addr, false, events.TopicUnblacklisted, "unblacklist")
}

func (s *Service) setBlacklisted(ctx context.Context, addr domain.Address, blacklisted bool, topic events.Topic, op string) error {
	if addr.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "address is required")
	}
	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	return s.mutate(ctx, op, func(ctx context.Context, _ models.AdminConfig) error {
		rec, err := s.substrate.Compliance(ctx, addr)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read compliance record")
		}
		if rec.Blacklisted == blacklisted {
			return nil
		}
		rec.Blacklisted = blacklisted
		if err := s.writeRecord(ctx, rec); err != nil {
			return err
		}
		return s.substrate.Record(ctx, events.New(topic, seq).WithActor(caller).WithSubject(addr))
	})
}

// AllowCountry adds a country to the transfer allow-list.
func (s *Service) AllowCountry(ctx context.Context, code string) error {
	return s.setCountryAllowed(ctx, code, true, events.TopicCountryAllowed, "allow_country")
}

// DisallowCountry removes a country from the allow-list.
func (s *Service) DisallowCountry(ctx context.Context, code string) error {
	return s.setCountryAllowed(ctx, code, false, events.TopicCountryRemoved, "disallow_country")
}

func (s *Service) setCountryAllowed(ctx context.Context, code string, allowed bool, topic events.Topic, op string) error {
	if !validCountryCode(code) {
		return dErrors.New(dErrors.CodeInvalidArgument, "country code must be two uppercase letters")
	}
	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	return s.mutate(ctx, op, func(ctx context.Context, _ models.AdminConfig) error {
		if err := s.reader.SetCountryAllowed(ctx, code, allowed); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write country allow-list")
		}
		return s.substrate.Record(ctx, events.New(topic, seq).WithActor(caller).WithMeta("country", code))
	})
}

// Record returns an address's compliance record, rolled over to the
// current daily window. Served through the caching reader.
func (s *Service) Record(ctx context.Context, addr domain.Address) (models.ComplianceRecord, error) {
	rec, err := s.reader.Compliance(ctx, addr)
	if err != nil {
		return rec, dErrors.Wrap(err, dErrors.CodeInternal, "read compliance record")
	}
	return RolledOver(rec, s.seq(ctx)), nil
}

func validCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
