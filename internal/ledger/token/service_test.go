package token

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"braza/internal/ledger/events"
	"braza/internal/ledger/guard"
	"braza/internal/ledger/metrics"
	"braza/internal/ledger/models"
	"braza/internal/ledger/store/memory"
	"braza/pkg/domain"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/requestcontext"
)

// =============================================================================
// Token Service Test Suite
// =============================================================================
// Justification for unit tests: transfers thread compliance gating, fee
// settlement, vesting locks, and supply accounting through one unit of
// work; each interaction has an exact expected balance split.

const (
	adminAddr = domain.Address("admin-1")
	collector = domain.Address("fees")
	alice     = domain.Address("alice")
	bob       = domain.Address("bob")
)

type TokenServiceSuite struct {
	suite.Suite
	store   *memory.Store
	service *Service
}

func TestTokenServiceSuite(t *testing.T) {
	suite.Run(t, new(TokenServiceSuite))
}

func (s *TokenServiceSuite) SetupTest() {
	s.store = memory.New()

	ctx := context.Background()
	s.Require().NoError(s.store.PutAdminConfig(ctx, models.AdminConfig{
		Admin:        adminAddr,
		FeeCollector: collector,
	}))
	s.Require().NoError(s.store.PutMetadata(ctx, models.TokenMetadata{
		Name:     "Braza",
		Symbol:   "BRZ",
		Decimals: domain.Decimals,
	}))
	s.Require().NoError(s.store.SetTotalSupply(ctx, domain.InitialSupply))
	s.Require().NoError(s.store.SetBalance(ctx, adminAddr, domain.InitialSupply))
	s.Require().NoError(s.store.SetCountryAllowed(ctx, "BR", true))

	var err error
	s.service, err = New(s.store, guard.New(), metrics.NewWith(prometheus.NewRegistry()))
	s.Require().NoError(err)
}

func (s *TokenServiceSuite) as(caller domain.Address) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), caller)
	return requestcontext.WithSequence(ctx, 1_000)
}

// seed funds an address out of the admin balance and writes a clean
// compliance record for it.
func (s *TokenServiceSuite) seed(addr domain.Address, amount domain.Amount) {
	ctx := context.Background()
	adminBalance, err := s.store.Balance(ctx, adminAddr)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetBalance(ctx, adminAddr, adminBalance-amount))
	s.Require().NoError(s.store.SetBalance(ctx, addr, amount))
	s.Require().NoError(s.store.PutCompliance(ctx, models.ComplianceRecord{
		Address:     addr,
		KYCLevel:    models.KYCAdvanced,
		CountryCode: "BR",
	}))
}

func (s *TokenServiceSuite) balance(addr domain.Address) domain.Amount {
	balance, err := s.store.Balance(context.Background(), addr)
	s.Require().NoError(err)
	return balance
}

func (s *TokenServiceSuite) setCompliance(addr domain.Address, mutate func(*models.ComplianceRecord)) {
	ctx := context.Background()
	rec, err := s.store.Compliance(ctx, addr)
	s.Require().NoError(err)
	mutate(&rec)
	s.Require().NoError(s.store.PutCompliance(ctx, rec))
}

// =============================================================================
// Transfer
// =============================================================================

func (s *TokenServiceSuite) TestTransferFeeSplit() {
	s.seed(alice, 1_000*domain.BraPerToken)
	s.seed(bob, 0)

	// Alice holds well under 0.1% of circulating supply: 5bp.
	amount := domain.Amount(1_000_000)
	s.NoError(s.service.Transfer(s.as(alice), bob, amount, models.ContextDefault))

	s.Equal(1_000*domain.BraPerToken-amount, s.balance(alice))
	s.Equal(domain.Amount(999_500), s.balance(bob))
	s.Equal(domain.Amount(500), s.balance(collector))

	s.Run("supply is conserved", func() {
		total := s.balance(alice) + s.balance(bob) + s.balance(collector) + s.balance(adminAddr)
		s.Equal(domain.InitialSupply, total)
	})

	s.Run("the daily counter is charged", func() {
		rec, err := s.store.Compliance(context.Background(), alice)
		s.NoError(err)
		s.Equal(amount, rec.DailySpent)
	})

	s.Run("the event carries the fee", func() {
		evts := s.store.Events()
		s.Require().NotEmpty(evts)
		event := evts[len(evts)-1]
		s.Equal(events.TopicTransfer, event.Topic)
		s.Equal(alice, event.Subject)
		s.Equal(bob, event.Other)
		s.Equal("500", event.Meta["fee"])
	})
}

func (s *TokenServiceSuite) TestTransferValidation() {
	s.seed(alice, 1_000*domain.BraPerToken)

	s.Run("zero amount is rejected", func() {
		err := s.service.Transfer(s.as(alice), bob, 0, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	s.Run("negative amount is rejected", func() {
		err := s.service.Transfer(s.as(alice), bob, -5, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	s.Run("unknown context is rejected", func() {
		err := s.service.Transfer(s.as(alice), bob, 100, "weekend_special")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	s.Run("empty context means default", func() {
		s.seed(bob, 0)
		s.NoError(s.service.Transfer(s.as(alice), bob, 100, ""))
	})

	s.Run("missing recipient is rejected", func() {
		err := s.service.Transfer(s.as(alice), "", 100, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})
}

func (s *TokenServiceSuite) TestTransferComplianceGate() {
	s.seed(alice, 1_000*domain.BraPerToken)
	s.seed(bob, 0)

	s.Run("blacklisted sender leaves balances untouched", func() {
		s.setCompliance(alice, func(rec *models.ComplianceRecord) { rec.Blacklisted = true })

		err := s.service.Transfer(s.as(alice), bob, 100, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeBlacklisted))
		s.Equal(domain.Amount(1_000*domain.BraPerToken), s.balance(alice))
		s.Equal(domain.Amount(0), s.balance(bob))

		s.setCompliance(alice, func(rec *models.ComplianceRecord) { rec.Blacklisted = false })
	})

	s.Run("sender without a country is rejected", func() {
		s.setCompliance(alice, func(rec *models.ComplianceRecord) { rec.CountryCode = "" })

		err := s.service.Transfer(s.as(alice), bob, 100, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeCountryNotAllowed))

		s.setCompliance(alice, func(rec *models.ComplianceRecord) { rec.CountryCode = "BR" })
	})

	s.Run("recipient in a disallowed country is rejected", func() {
		s.setCompliance(bob, func(rec *models.ComplianceRecord) { rec.CountryCode = "XX" })

		err := s.service.Transfer(s.as(alice), bob, 100, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeCountryNotAllowed))

		s.setCompliance(bob, func(rec *models.ComplianceRecord) { rec.CountryCode = "BR" })
	})

	s.Run("daily cap bounds the day's outflow", func() {
		s.setCompliance(alice, func(rec *models.ComplianceRecord) { rec.KYCLevel = models.KYCBasic })

		err := s.service.Transfer(s.as(alice), bob, 1_000*domain.BraPerToken+1, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeDailyLimitExceeded))

		// Within the cap passes and charges the counter; crossing it fails.
		s.NoError(s.service.Transfer(s.as(alice), bob, 500*domain.BraPerToken, models.ContextDefault))

		err = s.service.Transfer(s.as(alice), bob, 500*domain.BraPerToken+1, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeDailyLimitExceeded))

		s.setCompliance(alice, func(rec *models.ComplianceRecord) {
			rec.KYCLevel = models.KYCAdvanced
			rec.DailySpent = 0
		})
	})

	s.Run("the admin sends without a compliance record", func() {
		s.NoError(s.service.Transfer(s.as(adminAddr), bob, 100, models.ContextDefault))
	})

	s.Run("the fee collector receives without a compliance record", func() {
		s.NoError(s.service.Transfer(s.as(alice), collector, 100, models.ContextDefault))
	})

	s.Run("the fee collector forwards without a compliance record", func() {
		before := s.balance(bob)
		s.Require().NoError(s.store.SetBalance(context.Background(), collector, 1_000))

		s.NoError(s.service.Transfer(s.as(collector), bob, 1_000, models.ContextDefault))
		s.Greater(s.balance(bob), before)
		s.Equal(domain.Amount(0), s.balance(collector))
	})
}

func (s *TokenServiceSuite) TestTransferSpendableBound() {
	s.seed(alice, 100)
	s.seed(bob, 0)

	err := s.service.Transfer(s.as(alice), bob, 101, models.ContextDefault)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientSpendable))
}

func (s *TokenServiceSuite) TestTransferLockedBalance() {
	s.seed(alice, 1_000*domain.BraPerToken)
	s.seed(bob, 0)

	// Half of alice's balance sits behind an unvested schedule.
	s.Require().NoError(s.store.PutSchedule(context.Background(), models.VestingSchedule{
		ID:          0,
		Beneficiary: alice,
		Total:       500 * domain.BraPerToken,
		CliffSeq:    1_000_000,
		Duration:    1_000,
	}))

	err := s.service.Transfer(s.as(alice), bob, 600*domain.BraPerToken, models.ContextDefault)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientSpendable))

	s.NoError(s.service.Transfer(s.as(alice), bob, 400*domain.BraPerToken, models.ContextDefault))
}

func (s *TokenServiceSuite) TestTransferPaused() {
	s.seed(alice, 1_000*domain.BraPerToken)
	s.seed(bob, 0)

	ctx := context.Background()
	cfg, err := s.store.AdminConfig(ctx)
	s.Require().NoError(err)
	cfg.Paused = true
	s.Require().NoError(s.store.PutAdminConfig(ctx, cfg))

	err = s.service.Transfer(s.as(alice), bob, 100, models.ContextDefault)
	s.True(dErrors.HasCode(err, dErrors.CodeContractPaused))
}

// reenteringSubstrate calls back into the service from the event sink, the
// way a hostile host callback would mid-invocation.
type reenteringSubstrate struct {
	*memory.Store
	callback func(ctx context.Context) error
	inner    error
}

func (r *reenteringSubstrate) Record(ctx context.Context, event events.Event) error {
	if r.callback != nil {
		callback := r.callback
		r.callback = nil
		r.inner = callback(ctx)
		if r.inner != nil {
			return r.inner
		}
	}
	return r.Store.Record(ctx, event)
}

func (s *TokenServiceSuite) TestTransferCallbackReentrancy() {
	s.seed(alice, 1_000*domain.BraPerToken)
	s.seed(bob, 0)

	substrate := &reenteringSubstrate{Store: s.store}
	service, err := New(substrate, guard.New(), metrics.NewWith(prometheus.NewRegistry()))
	s.Require().NoError(err)

	substrate.callback = func(context.Context) error {
		return service.Transfer(s.as(alice), bob, 100, models.ContextDefault)
	}

	before := s.balance(alice)
	err = service.Transfer(s.as(alice), bob, 1_000_000, models.ContextDefault)
	s.True(dErrors.HasCode(err, dErrors.CodeReentrantCall))
	s.True(dErrors.HasCode(substrate.inner, dErrors.CodeReentrantCall))

	// The outer unit of work rolled every write back.
	s.Equal(before, s.balance(alice))
	s.Equal(domain.Amount(0), s.balance(bob))

	pending, err := s.store.UnpublishedEvents(context.Background(), 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *TokenServiceSuite) TestTransferContexts() {
	s.seed(alice, 1_000*domain.BraPerToken)
	s.seed(bob, 0)

	s.Run("admin distribution requires the admin", func() {
		err := s.service.Transfer(s.as(alice), bob, 100, models.ContextAdminDistribution)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("admin distribution waives the fee", func() {
		before := s.balance(collector)
		s.NoError(s.service.Transfer(s.as(adminAddr), bob, 1_000_000, models.ContextAdminDistribution))
		s.Equal(before, s.balance(collector))
	})

	s.Run("local commerce pays the flat 5bp", func() {
		before := s.balance(collector)
		s.NoError(s.service.Transfer(s.as(alice), bob, 1_000_000, models.ContextLocalCommerce))
		s.Equal(before+500, s.balance(collector))
	})

	s.Run("exchange to exchange pays the flat 10bp", func() {
		before := s.balance(collector)
		s.NoError(s.service.Transfer(s.as(alice), bob, 1_000_000, models.ContextExchangeToExchange))
		s.Equal(before+1_000, s.balance(collector))
	})
}

// =============================================================================
// Approvals and TransferFrom
// =============================================================================

func (s *TokenServiceSuite) TestApprove() {
	s.seed(alice, 1_000*domain.BraPerToken)

	s.Run("approve overwrites the previous allowance", func() {
		s.NoError(s.service.Approve(s.as(alice), bob, 10_000, 0))
		s.NoError(s.service.Approve(s.as(alice), bob, 3_000, 0))

		allowance, err := s.service.Allowance(s.as(alice), alice, bob)
		s.NoError(err)
		s.Equal(domain.Amount(3_000), allowance)
	})

	s.Run("negative amount is rejected", func() {
		err := s.service.Approve(s.as(alice), bob, -1, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	s.Run("past expiry is rejected", func() {
		err := s.service.Approve(s.as(alice), bob, 100, 999)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	s.Run("expired allowance reads as zero", func() {
		s.NoError(s.service.Approve(s.as(alice), bob, 100, 1_500))

		later := requestcontext.WithSequence(s.as(alice), 2_000)
		allowance, err := s.service.Allowance(later, alice, bob)
		s.NoError(err)
		s.Equal(domain.Amount(0), allowance)
	})
}

func (s *TokenServiceSuite) TestTransferFrom() {
	s.seed(alice, 1_000*domain.BraPerToken)
	s.seed(bob, 0)
	s.seed("carol", 0)

	s.Require().NoError(s.service.Approve(s.as(alice), bob, 1_000_000, 0))

	s.Run("spends the allowance down", func() {
		s.NoError(s.service.TransferFrom(s.as(bob), alice, "carol", 600_000, models.ContextDefault))

		allowance, err := s.service.Allowance(s.as(bob), alice, bob)
		s.NoError(err)
		s.Equal(domain.Amount(400_000), allowance)

		// 5bp fee comes out of the moved amount.
		s.Equal(domain.Amount(599_700), s.balance("carol"))
	})

	s.Run("exceeding the allowance is rejected", func() {
		err := s.service.TransferFrom(s.as(bob), alice, "carol", 500_000, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientAllowance))
	})

	s.Run("an expired allowance spends nothing", func() {
		s.Require().NoError(s.service.Approve(s.as(alice), bob, 1_000_000, 1_500))

		later := requestcontext.WithSequence(requestcontext.WithCaller(context.Background(), bob), 2_000)
		err := s.service.TransferFrom(later, alice, "carol", 100, models.ContextDefault)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientAllowance))
	})
}

// =============================================================================
// Mint and Burn
// =============================================================================

func (s *TokenServiceSuite) TestMint() {
	s.seed(alice, 0)

	s.Run("admin mints within the cap", func() {
		s.NoError(s.service.Mint(s.as(adminAddr), alice, 5_000))
		s.Equal(domain.Amount(5_000), s.balance(alice))

		supply, err := s.store.TotalSupply(context.Background())
		s.NoError(err)
		s.Equal(domain.InitialSupply+5_000, supply)
	})

	s.Run("non-admin cannot mint", func() {
		err := s.service.Mint(s.as(alice), alice, 100)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("the cap is immutable", func() {
		headroom := domain.MaxSupply - (domain.InitialSupply + 5_000)
		err := s.service.Mint(s.as(adminAddr), alice, headroom+1)
		s.True(dErrors.HasCode(err, dErrors.CodeSupplyExceeded))

		s.NoError(s.service.Mint(s.as(adminAddr), alice, headroom))
		supply, serr := s.store.TotalSupply(context.Background())
		s.NoError(serr)
		s.Equal(domain.MaxSupply, supply)
	})

	s.Run("a blacklisted recipient cannot be minted to", func() {
		s.setCompliance(alice, func(rec *models.ComplianceRecord) { rec.Blacklisted = true })
		err := s.service.Mint(s.as(adminAddr), alice, 100)
		s.True(dErrors.HasCode(err, dErrors.CodeBlacklisted))
	})
}

func (s *TokenServiceSuite) TestBurn() {
	s.seed(alice, 1_000*domain.BraPerToken)

	s.Run("burn reduces balance and supply together", func() {
		s.NoError(s.service.Burn(s.as(alice), 400*domain.BraPerToken))

		s.Equal(domain.Amount(600*domain.BraPerToken), s.balance(alice))
		supply, err := s.store.TotalSupply(context.Background())
		s.NoError(err)
		s.Equal(domain.InitialSupply-400*domain.BraPerToken, supply)
	})

	s.Run("locked tokens cannot be burned", func() {
		s.Require().NoError(s.store.PutSchedule(context.Background(), models.VestingSchedule{
			ID:          0,
			Beneficiary: alice,
			Total:       500 * domain.BraPerToken,
			CliffSeq:    1_000_000,
			Duration:    1_000,
		}))

		err := s.service.Burn(s.as(alice), 200*domain.BraPerToken)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientSpendable))
	})

	s.Run("a blacklisted address cannot burn", func() {
		s.setCompliance(alice, func(rec *models.ComplianceRecord) { rec.Blacklisted = true })
		err := s.service.Burn(s.as(alice), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeBlacklisted))
	})
}

// =============================================================================
// Force Operations
// =============================================================================

func (s *TokenServiceSuite) TestForceTransfer() {
	s.seed(alice, 1_000*domain.BraPerToken)
	s.seed(bob, 0)

	s.Run("bypasses compliance and fees", func() {
		s.setCompliance(alice, func(rec *models.ComplianceRecord) { rec.Blacklisted = true })

		s.NoError(s.service.ForceTransfer(s.as(adminAddr), alice, bob, 100*domain.BraPerToken))
		s.Equal(domain.Amount(100*domain.BraPerToken), s.balance(bob))
		s.Equal(domain.Amount(0), s.balance(collector))
	})

	s.Run("works while paused", func() {
		ctx := context.Background()
		cfg, err := s.store.AdminConfig(ctx)
		s.Require().NoError(err)
		cfg.Paused = true
		s.Require().NoError(s.store.PutAdminConfig(ctx, cfg))

		s.NoError(s.service.ForceTransfer(s.as(adminAddr), alice, bob, 100))

		cfg.Paused = false
		s.Require().NoError(s.store.PutAdminConfig(ctx, cfg))
	})

	s.Run("non-admin cannot force", func() {
		err := s.service.ForceTransfer(s.as(alice), alice, bob, 100)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("locked tokens still cannot move", func() {
		s.Require().NoError(s.store.PutSchedule(context.Background(), models.VestingSchedule{
			ID:          0,
			Beneficiary: alice,
			Total:       800 * domain.BraPerToken,
			CliffSeq:    1_000_000,
			Duration:    1_000,
		}))

		err := s.service.ForceTransfer(s.as(adminAddr), alice, bob, 200*domain.BraPerToken)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientSpendable))
	})
}

func (s *TokenServiceSuite) TestForceBurn() {
	s.seed(alice, 1_000*domain.BraPerToken)

	s.Run("admin burns another address's holdings", func() {
		s.NoError(s.service.ForceBurn(s.as(adminAddr), alice, 300*domain.BraPerToken))

		s.Equal(domain.Amount(700*domain.BraPerToken), s.balance(alice))
		supply, err := s.store.TotalSupply(context.Background())
		s.NoError(err)
		s.Equal(domain.InitialSupply-300*domain.BraPerToken, supply)
	})

	s.Run("non-admin cannot force burn", func() {
		err := s.service.ForceBurn(s.as(alice), alice, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

// =============================================================================
// Views
// =============================================================================

func (s *TokenServiceSuite) TestViews() {
	s.seed(alice, 1_000*domain.BraPerToken)

	s.Run("supply stats expose the cap", func() {
		s.Require().NoError(s.store.SetLockedTotal(context.Background(), 200*domain.BraPerToken))

		stats, err := s.service.Supply(context.Background())
		s.NoError(err)
		s.Equal(domain.InitialSupply, stats.Total)
		s.Equal(domain.Amount(200*domain.BraPerToken), stats.Locked)
		s.Equal(domain.InitialSupply-200*domain.BraPerToken, stats.Circulating)
		s.Equal(domain.MaxSupply, stats.Max)
	})

	s.Run("spendable subtracts the locked amount", func() {
		s.Require().NoError(s.store.PutSchedule(context.Background(), models.VestingSchedule{
			ID:          0,
			Beneficiary: alice,
			Total:       300 * domain.BraPerToken,
			CliffSeq:    1_000_000,
			Duration:    1_000,
		}))

		spendable, err := s.service.Spendable(s.as(alice), alice)
		s.NoError(err)
		s.Equal(domain.Amount(700*domain.BraPerToken), spendable)
	})

	s.Run("metadata surfaces before-initialize state", func() {
		svc, err := New(memory.New(), guard.New(), metrics.NewWith(prometheus.NewRegistry()))
		s.Require().NoError(err)

		_, err = svc.Metadata(context.Background())
		s.True(dErrors.HasCode(err, dErrors.CodeNotInitialized))
	})
}
