package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"braza/internal/ledger/events"
	"braza/internal/ledger/models"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
	"braza/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
}

func (s *MemoryStoreSuite) TestBalanceAbsenceReadsZero() {
	got, err := s.store.Balance(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(domain.Amount(0), got)
}

func (s *MemoryStoreSuite) TestSetBalanceZeroPrunes() {
	s.Require().NoError(s.store.SetBalance(s.ctx, "alice", 100))
	s.Require().NoError(s.store.SetBalance(s.ctx, "alice", 0))

	got, err := s.store.Balance(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(domain.Amount(0), got)
}

func (s *MemoryStoreSuite) TestAllowanceZeroAmountRemoves() {
	rec := models.AllowanceRecord{Amount: 500, Expiry: 10}
	s.Require().NoError(s.store.SetAllowance(s.ctx, "alice", "bob", rec))

	got, err := s.store.Allowance(s.ctx, "alice", "bob")
	s.Require().NoError(err)
	s.Equal(rec, got)

	s.Require().NoError(s.store.SetAllowance(s.ctx, "alice", "bob", models.AllowanceRecord{}))
	got, err = s.store.Allowance(s.ctx, "alice", "bob")
	s.Require().NoError(err)
	s.Equal(models.AllowanceRecord{}, got)
}

func (s *MemoryStoreSuite) TestScheduleIDsAreDense() {
	sched := models.VestingSchedule{ID: 0, Beneficiary: "alice", Total: 1000, Duration: 100}
	s.Require().NoError(s.store.PutSchedule(s.ctx, sched))

	count, err := s.store.ScheduleCount(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(uint32(1), count)

	s.Run("replace existing", func() {
		sched.Released = 400
		s.Require().NoError(s.store.PutSchedule(s.ctx, sched))
		got, err := s.store.Schedule(s.ctx, "alice", 0)
		s.Require().NoError(err)
		s.Equal(domain.Amount(400), got.Released)
	})

	s.Run("gap rejected", func() {
		err := s.store.PutSchedule(s.ctx, models.VestingSchedule{ID: 5, Beneficiary: "alice"})
		s.Error(err)
	})

	s.Run("missing id", func() {
		_, err := s.store.Schedule(s.ctx, "alice", 9)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestComplianceAbsenceReadsZeroRecord() {
	rec, err := s.store.Compliance(s.ctx, "carol")
	s.Require().NoError(err)
	s.Equal(domain.Address("carol"), rec.Address)
	s.Equal(models.KYCNone, rec.KYCLevel)
	s.False(rec.Blacklisted)
}

func (s *MemoryStoreSuite) TestCountryAllowList() {
	allowed, err := s.store.CountryAllowed(s.ctx, "BR")
	s.Require().NoError(err)
	s.False(allowed)

	s.Require().NoError(s.store.SetCountryAllowed(s.ctx, "BR", true))
	allowed, err = s.store.CountryAllowed(s.ctx, "BR")
	s.Require().NoError(err)
	s.True(allowed)

	s.Require().NoError(s.store.SetCountryAllowed(s.ctx, "BR", false))
	allowed, err = s.store.CountryAllowed(s.ctx, "BR")
	s.Require().NoError(err)
	s.False(allowed)
}

func (s *MemoryStoreSuite) TestAdminConfigNotFoundBeforeInit() {
	_, err := s.store.AdminConfig(s.ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	cfg := models.AdminConfig{Admin: "admin", FeeCollector: "collector"}
	s.Require().NoError(s.store.PutAdminConfig(s.ctx, cfg))

	got, err := s.store.AdminConfig(s.ctx)
	s.Require().NoError(err)
	s.Equal(cfg, got)
}

func (s *MemoryStoreSuite) TestRunCommitsOnSuccess() {
	err := s.store.Run(s.ctx, func(ctx context.Context) error {
		if err := s.store.SetBalance(ctx, "alice", 100); err != nil {
			return err
		}
		return s.store.SetTotalSupply(ctx, 100)
	})
	s.Require().NoError(err)

	bal, err := s.store.Balance(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(domain.Amount(100), bal)

	total, err := s.store.TotalSupply(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Amount(100), total)
}

func (s *MemoryStoreSuite) TestRunRollsBackEveryWriteOnError() {
	s.Require().NoError(s.store.SetBalance(s.ctx, "alice", 100))
	s.Require().NoError(s.store.SetCountryAllowed(s.ctx, "BR", true))

	failure := dErrors.New(dErrors.CodeInsufficientSpendable, "boom")
	err := s.store.Run(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.SetBalance(ctx, "alice", 1))
		s.Require().NoError(s.store.SetBalance(ctx, "bob", 99))
		s.Require().NoError(s.store.SetCountryAllowed(ctx, "BR", false))
		s.Require().NoError(s.store.Record(ctx, events.New(events.TopicTransfer, 1)))
		s.Require().NoError(s.store.PutSchedule(ctx, models.VestingSchedule{Beneficiary: "bob", Total: 10}))
		return failure
	})
	s.Require().ErrorIs(err, failure)

	bal, _ := s.store.Balance(s.ctx, "alice")
	s.Equal(domain.Amount(100), bal)
	bal, _ = s.store.Balance(s.ctx, "bob")
	s.Equal(domain.Amount(0), bal)
	allowed, _ := s.store.CountryAllowed(s.ctx, "BR")
	s.True(allowed)
	count, _ := s.store.ScheduleCount(s.ctx, "bob")
	s.Equal(uint32(0), count)
	s.Empty(s.store.Events())
}

func (s *MemoryStoreSuite) TestRunRecoversPanics() {
	err := s.store.Run(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.SetBalance(ctx, "alice", 7))
		panic("kaboom")
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))

	bal, _ := s.store.Balance(s.ctx, "alice")
	s.Equal(domain.Amount(0), bal)
}

func (s *MemoryStoreSuite) TestRunRejectsNesting() {
	err := s.store.Run(s.ctx, func(ctx context.Context) error {
		return s.store.Run(ctx, func(ctx context.Context) error { return nil })
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
}

func (s *MemoryStoreSuite) TestOutboxDrainAndAck() {
	first := events.New(events.TopicMint, 1)
	second := events.New(events.TopicTransfer, 2)
	third := events.New(events.TopicBurn, 3)
	for _, e := range []events.Event{first, second, third} {
		s.Require().NoError(s.store.Record(s.ctx, e))
	}

	pending, err := s.store.UnpublishedEvents(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)
	s.Equal(second.ID, pending[1].ID)

	s.Require().NoError(s.store.MarkPublished(s.ctx, []string{first.ID.String(), second.ID.String()}))

	pending, err = s.store.UnpublishedEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(third.ID, pending[0].ID)
}
