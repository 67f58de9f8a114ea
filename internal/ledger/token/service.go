// Package token implements the core ledger operations: transfers with fee
// settlement and compliance gating, allowance accounting, and supply
// mutation. Every mutating entry point acquires the shared re-entrancy
// guard and runs inside one storage unit of work.
package token

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"braza/internal/ledger/admin"
	"braza/internal/ledger/compliance"
	"braza/internal/ledger/events"
	"braza/internal/ledger/fee"
	"braza/internal/ledger/guard"
	"braza/internal/ledger/metrics"
	"braza/internal/ledger/models"
	"braza/internal/ledger/ports"
	"braza/internal/ledger/vesting"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
	"braza/pkg/platform/sentinel"
	"braza/pkg/requestcontext"
)

// Service is the token ledger.
type Service struct {
	substrate  ports.Substrate
	compliance ports.ComplianceStore
	guard      *guard.Guard
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	clock      func() time.Time
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

// WithComplianceWriter routes compliance writes (daily counters) through a
// caching store so cached records invalidate on spend.
func WithComplianceWriter(store ports.ComplianceStore) Option {
	return func(s *Service) {
		if store != nil {
			s.compliance = store
		}
	}
}

// New builds the token service. The guard is shared with the other ledger
// services.
func New(substrate ports.Substrate, g *guard.Guard, m *metrics.Metrics, opts ...Option) (*Service, error) {
	if substrate == nil {
		return nil, errors.New("token: substrate is required")
	}
	if g == nil {
		return nil, errors.New("token: guard is required")
	}
	if m == nil {
		return nil, errors.New("token: metrics are required")
	}
	s := &Service{
		substrate:  substrate,
		compliance: substrate,
		guard:      g,
		metrics:    m,
		logger:     slog.Default(),
		tracer:     otel.Tracer("braza/ledger/token"),
		clock:      time.Now,
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

// spendable reads balance minus locked vesting amount.
func (s *Service) spendable(ctx context.Context, addr domain.Address) (balance, spendable domain.Amount, err error) {
	balance, err = s.substrate.Balance(ctx, addr)
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "read balance")
	}
	locked, err := vesting.Locked(ctx, s.substrate, addr)
	if err != nil {
		return 0, 0, err
	}
	return balance, balance - locked, nil
}

// countryAllowed resolves an address's country against the allow-list.
// Compliance by default: an address with no country set is not allowed.
func (s *Service) countryAllowed(ctx context.Context, rec models.ComplianceRecord) (bool, error) {
	if rec.CountryCode == "" {
		return false, nil
	}
	allowed, err := s.substrate.CountryAllowed(ctx, rec.CountryCode)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "read country allow-list")
	}
	return allowed, nil
}

// gateSender runs the full outbound rule chain and charges the daily
// counter. The admin and the fee collector are exempt: bootstrap
// distribution happens before any compliance records exist, and collected
// fees must stay forwardable without provisioning a record for the
// collector. Both still go through the spendable and supply checks.
func (s *Service) gateSender(ctx context.Context, cfg models.AdminConfig, sender domain.Address, amount domain.Amount, now domain.Sequence) error {
	if sender == cfg.Admin || sender == cfg.FeeCollector {
		return nil
	}
	rec, err := s.substrate.Compliance(ctx, sender)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read sender compliance")
	}
	rec = compliance.RolledOver(rec, now)
	allowed, err := s.countryAllowed(ctx, rec)
	if err != nil {
		return err
	}
	if err := compliance.CheckSender(rec, amount, allowed); err != nil {
		s.metrics.RecordRejection(string(dErrors.CodeOf(err)))
		return err
	}
	rec.DailySpent += amount
	if err := s.compliance.PutCompliance(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "charge daily counter")
	}
	return nil
}

// gateRecipient runs the inbound subset. The fee collector and the admin
// are exempt as recipients.
func (s *Service) gateRecipient(ctx context.Context, cfg models.AdminConfig, recipient domain.Address) error {
	if recipient == cfg.Admin || recipient == cfg.FeeCollector {
		return nil
	}
	rec, err := s.substrate.Compliance(ctx, recipient)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read recipient compliance")
	}
	allowed, err := s.countryAllowed(ctx, rec)
	if err != nil {
		return err
	}
	if err := compliance.CheckRecipient(rec, allowed); err != nil {
		s.metrics.RecordRejection(string(dErrors.CodeOf(err)))
		return err
	}
	return nil
}

func (s *Service) credit(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	balance, err := s.substrate.Balance(ctx, addr)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read balance")
	}
	credited, err := balance.CheckedAdd(amount)
	if err != nil {
		return err
	}
	if err := s.substrate.SetBalance(ctx, addr, credited); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write balance")
	}
	return nil
}

func validateContext(context models.TransferContext) (models.TransferContext, error) {
	if context == "" {
		return models.ContextDefault, nil
	}
	if !context.IsValid() {
		return context, dErrors.New(dErrors.CodeInvalidArgument, "unknown transfer context")
	}
	return context, nil
}

// Transfer moves amount from the caller to the recipient, settling the fee
// to the collector inside the same unit of work.
func (s *Service) Transfer(ctx context.Context, to domain.Address, amount domain.Amount, transferContext models.TransferContext) error {
	ctx, span := s.tracer.Start(ctx, "token.Transfer")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveTransfer(start)

	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	from := requestcontext.Caller(ctx)
	err = s.transferLocked(ctx, from, from, to, amount, transferContext, false)
	s.metrics.RecordOperation("transfer", outcome(err))
	return err
}

// TransferFrom moves amount from owner to the recipient on the caller's
// allowance.
func (s *Service) TransferFrom(ctx context.Context, owner, to domain.Address, amount domain.Amount, transferContext models.TransferContext) error {
	ctx, span := s.tracer.Start(ctx, "token.TransferFrom")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveTransfer(start)

	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	spender := requestcontext.Caller(ctx)
	err = s.transferLocked(ctx, spender, owner, to, amount, transferContext, true)
	s.metrics.RecordOperation("transfer_from", outcome(err))
	return err
}

// transferLocked is the shared transfer path; the guard is already held.
// When viaAllowance is set, actor spends from's allowance.
func (s *Service) transferLocked(ctx context.Context, actor, from, to domain.Address, amount domain.Amount, transferContext models.TransferContext, viaAllowance bool) error {
	if from.IsNil() || to.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "sender and recipient addresses are required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}
	transferContext, err := validateContext(transferContext)
	if err != nil {
		return err
	}

	now := s.seq(ctx)
	return s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := admin.Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := admin.RequireUnpaused(cfg); err != nil {
			return err
		}
		if transferContext == models.ContextAdminDistribution && actor != cfg.Admin {
			return dErrors.New(dErrors.CodeUnauthorized, "admin distribution context requires the admin")
		}

		if viaAllowance {
			allowance, err := s.substrate.Allowance(ctx, from, actor)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read allowance")
			}
			current := allowance.ValueAt(now)
			if amount > current {
				return dErrors.New(dErrors.CodeInsufficientAllowance, "transfer exceeds the allowance")
			}
			allowance.Amount = current - amount
			if err := s.substrate.SetAllowance(ctx, from, actor, allowance); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "write allowance")
			}
		}

		if err := s.gateSender(ctx, cfg, from, amount, now); err != nil {
			return err
		}
		if err := s.gateRecipient(ctx, cfg, to); err != nil {
			return err
		}

		balance, spendable, err := s.spendable(ctx, from)
		if err != nil {
			return err
		}
		if amount > spendable {
			return dErrors.New(dErrors.CodeInsufficientSpendable, "transfer exceeds the spendable balance")
		}

		totalSupply, err := s.substrate.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
		}
		lockedTotal, err := s.substrate.LockedTotal(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read locked total")
		}
		feeAmount, net, err := fee.Calculate(balance, totalSupply-lockedTotal, amount, transferContext)
		if err != nil {
			return err
		}

		if err := s.substrate.SetBalance(ctx, from, balance-amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "debit sender")
		}
		if err := s.credit(ctx, to, net); err != nil {
			return err
		}
		if feeAmount > 0 {
			if err := s.credit(ctx, cfg.FeeCollector, feeAmount); err != nil {
				return err
			}
			s.metrics.FeesCollected.Add(float64(feeAmount))
		}

		event := events.New(events.TopicTransfer, now).
			WithActor(actor).
			WithSubject(from).
			WithOther(to).
			WithAmount(amount).
			WithMeta("fee", strconv.FormatInt(feeAmount.Int64(), 10)).
			WithMeta("context", string(transferContext))
		return s.substrate.Record(ctx, event)
	})
}

// Approve overwrites the caller's allowance for a spender. No increment
// semantics: a fresh approve replaces whatever was there, closing the
// double-approval race.
func (s *Service) Approve(ctx context.Context, spender domain.Address, amount domain.Amount, expiry domain.Sequence) error {
	ctx, span := s.tracer.Start(ctx, "token.Approve")
	defer span.End()

	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	owner := requestcontext.Caller(ctx)
	if owner.IsNil() || spender.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "owner and spender addresses are required")
	}
	if amount < 0 {
		return dErrors.New(dErrors.CodeInvalidArgument, "amount cannot be negative")
	}
	now := s.seq(ctx)
	if expiry != 0 && expiry < now {
		return dErrors.New(dErrors.CodeInvalidArgument, "expiry is already in the past")
	}

	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		if _, err := admin.Load(ctx, s.substrate); err != nil {
			return err
		}
		old, err := s.substrate.Allowance(ctx, owner, spender)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read allowance")
		}
		rec := models.AllowanceRecord{Amount: amount, Expiry: expiry}
		if err := s.substrate.SetAllowance(ctx, owner, spender, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write allowance")
		}
		event := events.New(events.TopicApproval, now).
			WithActor(owner).
			WithSubject(owner).
			WithOther(spender).
			WithAmount(amount).
			WithMeta("old_amount", strconv.FormatInt(old.ValueAt(now).Int64(), 10))
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("approve", outcome(err))
	return err
}

// Mint creates new supply for a recipient, bounded by the immutable cap.
func (s *Service) Mint(ctx context.Context, to domain.Address, amount domain.Amount) error {
	ctx, span := s.tracer.Start(ctx, "token.Mint")
	defer span.End()

	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	if to.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "recipient address is required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}

	caller := requestcontext.Caller(ctx)
	now := s.seq(ctx)
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
		if err := s.gateRecipient(ctx, cfg, to); err != nil {
			return err
		}

		totalSupply, err := s.substrate.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
		}
		newSupply, err := totalSupply.CheckedAdd(amount)
		if err != nil || newSupply > domain.MaxSupply {
			return dErrors.New(dErrors.CodeSupplyExceeded, "mint would exceed the supply cap")
		}
		if err := s.substrate.SetTotalSupply(ctx, newSupply); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write total supply")
		}
		if err := s.credit(ctx, to, amount); err != nil {
			return err
		}

		event := events.New(events.TopicMint, now).
			WithActor(caller).
			WithSubject(to).
			WithAmount(amount)
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("mint", outcome(err))
	if err != nil {
		return err
	}
	s.logger.Info("supply minted", "to", to, "amount", amount)
	return nil
}

// Burn destroys spendable tokens of the caller. Locked (vesting) tokens
// cannot be burned.
func (s *Service) Burn(ctx context.Context, amount domain.Amount) error {
	ctx, span := s.tracer.Start(ctx, "token.Burn")
	defer span.End()

	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	from := requestcontext.Caller(ctx)
	if from.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "caller address is required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}

	now := s.seq(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := admin.Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := admin.RequireUnpaused(cfg); err != nil {
			return err
		}
		rec, err := s.substrate.Compliance(ctx, from)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read compliance record")
		}
		if err := compliance.CheckBurn(rec); err != nil {
			s.metrics.RecordRejection(string(dErrors.CodeOf(err)))
			return err
		}

		balance, spendable, err := s.spendable(ctx, from)
		if err != nil {
			return err
		}
		if amount > spendable {
			return dErrors.New(dErrors.CodeInsufficientSpendable, "burn exceeds the spendable balance")
		}
		totalSupply, err := s.substrate.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
		}
		newSupply, err := totalSupply.CheckedSub(amount)
		if err != nil {
			return err
		}
		if err := s.substrate.SetTotalSupply(ctx, newSupply); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write total supply")
		}
		if err := s.substrate.SetBalance(ctx, from, balance-amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "debit burner")
		}

		event := events.New(events.TopicBurn, now).
			WithActor(from).
			WithSubject(from).
			WithAmount(amount)
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("burn", outcome(err))
	return err
}

// ForceTransfer is an admin-only judicial override: it bypasses compliance
// and fees but never the spendable or supply invariants.
func (s *Service) ForceTransfer(ctx context.Context, from, to domain.Address, amount domain.Amount) error {
	ctx, span := s.tracer.Start(ctx, "token.ForceTransfer")
	defer span.End()

	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	if from.IsNil() || to.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "sender and recipient addresses are required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}

	caller := requestcontext.Caller(ctx)
	now := s.seq(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := admin.Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := admin.Require(cfg, caller); err != nil {
			return err
		}
		balance, spendable, err := s.spendable(ctx, from)
		if err != nil {
			return err
		}
		if amount > spendable {
			return dErrors.New(dErrors.CodeInsufficientSpendable, "force transfer exceeds the spendable balance")
		}
		if err := s.substrate.SetBalance(ctx, from, balance-amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "debit sender")
		}
		if err := s.credit(ctx, to, amount); err != nil {
			return err
		}

		event := events.New(events.TopicForceTransfer, now).
			WithActor(caller).
			WithSubject(from).
			WithOther(to).
			WithAmount(amount)
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("force_transfer", outcome(err))
	if err != nil {
		return err
	}
	s.logger.Warn("force transfer executed", "from", from, "to", to, "amount", amount)
	return nil
}

// ForceBurn is the admin-only counterpart of Burn.
func (s *Service) ForceBurn(ctx context.Context, from domain.Address, amount domain.Amount) error {
	ctx, span := s.tracer.Start(ctx, "token.ForceBurn")
	defer span.End()

	release, err := s.guard.Acquire()
	if err != nil {
		s.metrics.ReentrancyTripped.Inc()
		return err
	}
	defer release()

	if from.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "address is required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}

	caller := requestcontext.Caller(ctx)
	now := s.seq(ctx)
	err = s.substrate.Run(ctx, func(ctx context.Context) error {
		cfg, err := admin.Load(ctx, s.substrate)
		if err != nil {
			return err
		}
		if err := admin.Require(cfg, caller); err != nil {
			return err
		}
		balance, spendable, err := s.spendable(ctx, from)
		if err != nil {
			return err
		}
		if amount > spendable {
			return dErrors.New(dErrors.CodeInsufficientSpendable, "force burn exceeds the spendable balance")
		}
		totalSupply, err := s.substrate.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
		}
		newSupply, err := totalSupply.CheckedSub(amount)
		if err != nil {
			return err
		}
		if err := s.substrate.SetTotalSupply(ctx, newSupply); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write total supply")
		}
		if err := s.substrate.SetBalance(ctx, from, balance-amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "debit address")
		}

		event := events.New(events.TopicForceBurn, now).
			WithActor(caller).
			WithSubject(from).
			WithAmount(amount)
		return s.substrate.Record(ctx, event)
	})
	s.metrics.RecordOperation("force_burn", outcome(err))
	if err != nil {
		return err
	}
	s.logger.Warn("force burn executed", "from", from, "amount", amount)
	return nil
}

// Balance returns the raw balance.
func (s *Service) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	return s.substrate.Balance(ctx, addr)
}

// Spendable returns balance minus the locked vesting amount.
func (s *Service) Spendable(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	_, spendable, err := s.spendable(ctx, addr)
	return spendable, err
}

// Allowance returns the live allowance; expired records read as zero.
func (s *Service) Allowance(ctx context.Context, owner, spender domain.Address) (domain.Amount, error) {
	rec, err := s.substrate.Allowance(ctx, owner, spender)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read allowance")
	}
	return rec.ValueAt(s.seq(ctx)), nil
}

// Supply returns the supply statistics.
func (s *Service) Supply(ctx context.Context) (models.SupplyStats, error) {
	total, err := s.substrate.TotalSupply(ctx)
	if err != nil {
		return models.SupplyStats{}, dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
	}
	locked, err := s.substrate.LockedTotal(ctx)
	if err != nil {
		return models.SupplyStats{}, dErrors.Wrap(err, dErrors.CodeInternal, "read locked total")
	}
	return models.SupplyStats{
		Total:       total,
		Locked:      locked,
		Circulating: total - locked,
		Max:         domain.MaxSupply,
	}, nil
}

// Metadata returns the token name, symbol, and decimals.
func (s *Service) Metadata(ctx context.Context) (models.TokenMetadata, error) {
	meta, err := s.substrate.Metadata(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return meta, dErrors.New(dErrors.CodeNotInitialized, "ledger is not initialized")
	}
	if err != nil {
		return meta, dErrors.Wrap(err, dErrors.CodeInternal, "read token metadata")
	}
	return meta, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
