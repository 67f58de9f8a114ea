// Package admin owns the ledger lifecycle: one-time initialization, the
// pause switch, and custody of the admin and fee-collector addresses. It
// also exports the authorization predicate the other services share.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

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

// Service mutates the admin configuration.
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

// New builds the admin service. The guard is shared across all ledger
// services so one invocation holds one flag.
func New(substrate ports.Substrate, g *guard.Guard, m *metrics.Metrics, opts ...Option) (*Service, error) {
	if substrate == nil {
		return nil, errors.New("admin: substrate is required")
	}
	if g == nil {
		return nil, errors.New("admin: guard is required")
	}
	if m == nil {
		return nil, errors.New("admin: metrics are required")
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

// InitializeParams carries the one-time bootstrap inputs.
type InitializeParams struct {
	Admin        domain.Address
	FeeCollector domain.Address
	Name         string
	Symbol       string
}

// Initialize bootstraps the ledger: admin config, token metadata, and the
// initial supply minted to the admin. Callable exactly once.
func (s *Service) Initialize(ctx context.Context, params InitializeParams) error {
	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	if params.Admin.IsNil() || params.FeeCollector.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "admin and fee collector addresses are required")
	}
	if params.Name == "" || params.Symbol == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "token name and symbol are required")
	}

	seq := s.seq(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		_, err := s.substrate.AdminConfig(ctx)
		if err == nil {
			return dErrors.New(dErrors.CodeAlreadyInitialized, "ledger is already initialized")
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load admin config")
		}
		cfg := models.AdminConfig{Admin: params.Admin, FeeCollector: params.FeeCollector}
		if err := s.substrate.PutAdminConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write admin config")
		}
		meta := models.TokenMetadata{Name: params.Name, Symbol: params.Symbol, Decimals: domain.Decimals}
		if err := s.substrate.PutMetadata(ctx, meta); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write token metadata")
		}
		if err := s.substrate.SetTotalSupply(ctx, domain.InitialSupply); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write total supply")
		}
		if err := s.substrate.SetBalance(ctx, params.Admin, domain.InitialSupply); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write admin balance")
		}
		initialized := events.New(events.TopicInitialized, seq).
			WithSubject(params.Admin).
			WithMeta("name", params.Name).
			WithMeta("symbol", params.Symbol)
		if err := s.substrate.Record(ctx, initialized); err != nil {
			return err
		}
		minted := events.New(events.TopicMint, seq).
			WithSubject(params.Admin).
			WithAmount(domain.InitialSupply)
		return s.substrate.Record(ctx, minted)
	})
	s.metrics.RecordOperation("initialize", outcome(err))
	if err != nil {
		return err
	}
	s.logger.Info("ledger initialized",
		"admin", params.Admin,
		"fee_collector", params.FeeCollector,
		"symbol", params.Symbol)
	return nil
}

// Pause halts transfer-class operations. Idempotent: pausing a paused
// ledger changes nothing and emits nothing.
func (s *Service) Pause(ctx context.Context) error {
	return s.setPaused(ctx, true, events.TopicPaused, "pause")
}

// Unpause lifts the pause.
func (s *Service) Unpause(ctx context.Context) error {
	return s.setPaused(ctx, false, events.TopicUnpaused, "unpause")
}

func (s *Service) setPaused(ctx context.Context, paused bool, topic events.Topic, op string) error {
	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := Require(cfg, caller); err != nil {
			return err
		}
		if cfg.Paused == paused {
			return nil
		}
		cfg.Paused = paused
		if err := s.substrate.PutAdminConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write admin config")
		}
		return s.substrate.Record(ctx, events.New(topic, seq).WithActor(caller))
	})
	s.metrics.RecordOperation(op, outcome(err))
	if err != nil {
		return err
	}
	s.logger.Info("pause state set", "paused", paused, "admin", caller)
	return nil
}

// TransferOwnership hands the admin role to a new address.
func (s *Service) TransferOwnership(ctx context.Context, newAdmin domain.Address) error {
	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	if newAdmin.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "new admin address is required")
	}
	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := Require(cfg, caller); err != nil {
			return err
		}
		cfg.Admin = newAdmin
		if err := s.substrate.PutAdminConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write admin config")
		}
		event := events.New(events.TopicAdminChanged, seq).
			WithActor(caller).
			WithSubject(newAdmin)
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("transfer_ownership", outcome(err))
	if err != nil {
		return err
	}
	s.logger.Info("admin changed", "old", caller, "new", newAdmin)
	return nil
}

// SetFeeCollector repoints the fee destination.
func (s *Service) SetFeeCollector(ctx context.Context, collector domain.Address) error {
	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	if collector.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "fee collector address is required")
	}
	caller := requestcontext.Caller(ctx)
	seq := s.seq(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := Require(cfg, caller); err != nil {
			return err
		}
		cfg.FeeCollector = collector
		if err := s.substrate.PutAdminConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write admin config")
		}
		event := events.New(events.TopicFeeCollectorSet, seq).
			WithActor(caller).
			WithSubject(collector)
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("set_fee_collector", outcome(err))
	if err != nil {
		return err
	}
	s.logger.Info("fee collector set", "collector", collector)
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
