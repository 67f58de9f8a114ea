// Package postgres persists the ledger in PostgreSQL. Run maps a unit of
// work onto one SQL transaction carried in the context, so every store
// method inside the unit reads and writes through the same tx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"braza/internal/ledger/events"
	"braza/internal/ledger/models"
	"braza/internal/ledger/ports"
	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
	"braza/pkg/platform/sentinel"
	"braza/pkg/platform/tx"
)

// Store implements ports.Substrate over database/sql with lib/pq.
type Store struct {
	db *sql.DB
}

var _ ports.Substrate = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is the subset of *sql.DB and *sql.Tx the store uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the active transaction when a unit of work is running,
// otherwise the pooled handle.
func (s *Store) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// Run executes fn inside one SQL transaction. The transaction rides the
// context; fn must pass that context to every store call it makes.
func (s *Store) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return dErrors.New(dErrors.CodeInternal, "nested unit of work")
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin unit of work")
	}
	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return dErrors.Wrap(err, dErrors.CodeOf(err), fmt.Sprintf("rollback failed: %v", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit unit of work")
	}
	return nil
}

func (s *Store) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	var amount int64
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE address = $1`, addr.String()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return domain.Amount(amount), nil
}

func (s *Store) SetBalance(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	if amount == 0 {
		_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM balances WHERE address = $1`, addr.String())
		if err != nil {
			return fmt.Errorf("prune balance: %w", err)
		}
		return nil
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO balances (address, amount, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (address) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = now()
	`, addr.String(), amount.Int64())
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func (s *Store) Allowance(ctx context.Context, owner, spender domain.Address) (models.AllowanceRecord, error) {
	var rec models.AllowanceRecord
	var amount, expiry int64
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT amount, expiry FROM allowances WHERE owner_address = $1 AND spender_address = $2`,
		owner.String(), spender.String()).Scan(&amount, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("read allowance: %w", err)
	}
	rec.Amount = domain.Amount(amount)
	rec.Expiry = domain.Sequence(expiry)
	return rec, nil
}

func (s *Store) SetAllowance(ctx context.Context, owner, spender domain.Address, rec models.AllowanceRecord) error {
	if rec.Amount == 0 {
		_, err := s.q(ctx).ExecContext(ctx,
			`DELETE FROM allowances WHERE owner_address = $1 AND spender_address = $2`,
			owner.String(), spender.String())
		if err != nil {
			return fmt.Errorf("prune allowance: %w", err)
		}
		return nil
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO allowances (owner_address, spender_address, amount, expiry, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (owner_address, spender_address) DO UPDATE SET
			amount = EXCLUDED.amount,
			expiry = EXCLUDED.expiry,
			updated_at = now()
	`, owner.String(), spender.String(), rec.Amount.Int64(), int64(rec.Expiry))
	if err != nil {
		return fmt.Errorf("write allowance: %w", err)
	}
	return nil
}

func (s *Store) ScheduleCount(ctx context.Context, addr domain.Address) (uint32, error) {
	var count uint32
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vesting_schedules WHERE beneficiary = $1`, addr.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count schedules: %w", err)
	}
	return count, nil
}

const scheduleColumns = `schedule_id, beneficiary, total, released, start_seq, cliff_seq, duration, revocable, revoked`

func scanSchedule(row interface{ Scan(...any) error }) (models.VestingSchedule, error) {
	var sched models.VestingSchedule
	var id uint32
	var total, released, startSeq, cliffSeq, duration int64
	var beneficiary string
	err := row.Scan(&id, &beneficiary, &total, &released, &startSeq, &cliffSeq, &duration, &sched.Revocable, &sched.Revoked)
	if err != nil {
		return sched, err
	}
	sched.ID = domain.ScheduleID(id)
	sched.Beneficiary = domain.Address(beneficiary)
	sched.Total = domain.Amount(total)
	sched.Released = domain.Amount(released)
	sched.StartSeq = domain.Sequence(startSeq)
	sched.CliffSeq = domain.Sequence(cliffSeq)
	sched.Duration = domain.Sequence(duration)
	return sched, nil
}

func (s *Store) Schedule(ctx context.Context, addr domain.Address, id domain.ScheduleID) (models.VestingSchedule, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM vesting_schedules WHERE beneficiary = $1 AND schedule_id = $2`,
		addr.String(), uint32(id))
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sched, sentinel.ErrNotFound
	}
	if err != nil {
		return sched, fmt.Errorf("read schedule: %w", err)
	}
	return sched, nil
}

func (s *Store) PutSchedule(ctx context.Context, sched models.VestingSchedule) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO vesting_schedules
			(beneficiary, schedule_id, total, released, start_seq, cliff_seq, duration, revocable, revoked, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (beneficiary, schedule_id) DO UPDATE SET
			released = EXCLUDED.released,
			revoked = EXCLUDED.revoked,
			updated_at = now()
	`, sched.Beneficiary.String(), uint32(sched.ID), sched.Total.Int64(), sched.Released.Int64(),
		int64(sched.StartSeq), int64(sched.CliffSeq), int64(sched.Duration), sched.Revocable, sched.Revoked)
	if err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	return nil
}

func (s *Store) Schedules(ctx context.Context, addr domain.Address) ([]models.VestingSchedule, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM vesting_schedules WHERE beneficiary = $1 ORDER BY schedule_id`,
		addr.String())
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []models.VestingSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return out, nil
}

func (s *Store) Compliance(ctx context.Context, addr domain.Address) (models.ComplianceRecord, error) {
	rec := models.ComplianceRecord{Address: addr}
	var kycLevel, riskScore uint32
	var dailySpent, windowStart, limitOverride int64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT kyc_level, country_code, risk_score, blacklisted,
		       daily_spent, daily_window_start, daily_limit_override
		FROM compliance_records WHERE address = $1
	`, addr.String()).Scan(&kycLevel, &rec.CountryCode, &riskScore, &rec.Blacklisted,
		&dailySpent, &windowStart, &limitOverride)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("read compliance: %w", err)
	}
	rec.KYCLevel = models.KYCLevel(kycLevel)
	rec.RiskScore = riskScore
	rec.DailySpent = domain.Amount(dailySpent)
	rec.DailyWindowStart = domain.Sequence(windowStart)
	rec.DailyLimitOverride = domain.Amount(limitOverride)
	return rec, nil
}

func (s *Store) PutCompliance(ctx context.Context, rec models.ComplianceRecord) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO compliance_records
			(address, kyc_level, country_code, risk_score, blacklisted,
			 daily_spent, daily_window_start, daily_limit_override, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (address) DO UPDATE SET
			kyc_level = EXCLUDED.kyc_level,
			country_code = EXCLUDED.country_code,
			risk_score = EXCLUDED.risk_score,
			blacklisted = EXCLUDED.blacklisted,
			daily_spent = EXCLUDED.daily_spent,
			daily_window_start = EXCLUDED.daily_window_start,
			daily_limit_override = EXCLUDED.daily_limit_override,
			updated_at = now()
	`, rec.Address.String(), uint32(rec.KYCLevel), rec.CountryCode, rec.RiskScore, rec.Blacklisted,
		rec.DailySpent.Int64(), int64(rec.DailyWindowStart), rec.DailyLimitOverride.Int64())
	if err != nil {
		return fmt.Errorf("write compliance: %w", err)
	}
	return nil
}

func (s *Store) CountryAllowed(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM allowed_countries WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("read country allow-list: %w", err)
	}
	return exists, nil
}

func (s *Store) SetCountryAllowed(ctx context.Context, code string, allowed bool) error {
	var err error
	if allowed {
		_, err = s.q(ctx).ExecContext(ctx,
			`INSERT INTO allowed_countries (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`, code)
	} else {
		_, err = s.q(ctx).ExecContext(ctx, `DELETE FROM allowed_countries WHERE code = $1`, code)
	}
	if err != nil {
		return fmt.Errorf("write country allow-list: %w", err)
	}
	return nil
}

// Supply counters and the global schedule count live as named rows in
// ledger_counters so they share one read/write path.
const (
	counterTotalSupply     = "total_supply"
	counterLockedTotal     = "locked_total"
	counterGlobalSchedules = "global_schedules"
)

func (s *Store) counter(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT value FROM ledger_counters WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return value, nil
}

func (s *Store) setCounter(ctx context.Context, name string, value int64) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO ledger_counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("write counter %s: %w", name, err)
	}
	return nil
}

func (s *Store) TotalSupply(ctx context.Context) (domain.Amount, error) {
	v, err := s.counter(ctx, counterTotalSupply)
	return domain.Amount(v), err
}

func (s *Store) SetTotalSupply(ctx context.Context, amount domain.Amount) error {
	return s.setCounter(ctx, counterTotalSupply, amount.Int64())
}

func (s *Store) LockedTotal(ctx context.Context) (domain.Amount, error) {
	v, err := s.counter(ctx, counterLockedTotal)
	return domain.Amount(v), err
}

func (s *Store) SetLockedTotal(ctx context.Context, amount domain.Amount) error {
	return s.setCounter(ctx, counterLockedTotal, amount.Int64())
}

func (s *Store) GlobalScheduleCount(ctx context.Context) (uint32, error) {
	v, err := s.counter(ctx, counterGlobalSchedules)
	return uint32(v), err
}

func (s *Store) SetGlobalScheduleCount(ctx context.Context, count uint32) error {
	return s.setCounter(ctx, counterGlobalSchedules, int64(count))
}

func (s *Store) AdminConfig(ctx context.Context) (models.AdminConfig, error) {
	var cfg models.AdminConfig
	var admin, collector string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT admin_address, fee_collector, paused FROM admin_config WHERE singleton`).
		Scan(&admin, &collector, &cfg.Paused)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, sentinel.ErrNotFound
	}
	if err != nil {
		return cfg, fmt.Errorf("read admin config: %w", err)
	}
	cfg.Admin = domain.Address(admin)
	cfg.FeeCollector = domain.Address(collector)
	return cfg, nil
}

func (s *Store) PutAdminConfig(ctx context.Context, cfg models.AdminConfig) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO admin_config (singleton, admin_address, fee_collector, paused)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE SET
			admin_address = EXCLUDED.admin_address,
			fee_collector = EXCLUDED.fee_collector,
			paused = EXCLUDED.paused
	`, cfg.Admin.String(), cfg.FeeCollector.String(), cfg.Paused)
	if err != nil {
		return fmt.Errorf("write admin config: %w", err)
	}
	return nil
}

func (s *Store) Metadata(ctx context.Context) (models.TokenMetadata, error) {
	var meta models.TokenMetadata
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT name, symbol, decimals FROM token_metadata WHERE singleton`).
		Scan(&meta.Name, &meta.Symbol, &meta.Decimals)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, sentinel.ErrNotFound
	}
	if err != nil {
		return meta, fmt.Errorf("read token metadata: %w", err)
	}
	return meta, nil
}

func (s *Store) PutMetadata(ctx context.Context, meta models.TokenMetadata) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO token_metadata (singleton, name, symbol, decimals)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals
	`, meta.Name, meta.Symbol, meta.Decimals)
	if err != nil {
		return fmt.Errorf("write token metadata: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, event events.Event) error {
	meta, err := json.Marshal(event.Meta)
	if err != nil {
		return fmt.Errorf("encode event meta: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO ledger_events
			(id, topic, sequence, at, actor, subject, other, amount, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.ID, string(event.Topic), int64(event.Sequence), event.At,
		event.Actor.String(), event.Subject.String(), event.Other.String(),
		event.Amount.Int64(), meta)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func (s *Store) UnpublishedEvents(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, topic, sequence, at, actor, subject, other, amount, meta
		FROM ledger_events
		WHERE NOT published
		ORDER BY ordinal
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var id, topic, actor, subject, other string
		var seq, amount int64
		var at time.Time
		var meta []byte
		if err := rows.Scan(&id, &topic, &seq, &at, &actor, &subject, &other, &amount, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		e.Topic = events.Topic(topic)
		e.Sequence = domain.Sequence(seq)
		e.At = at
		e.Actor = domain.Address(actor)
		e.Subject = domain.Address(subject)
		e.Other = domain.Address(other)
		e.Amount = domain.Amount(amount)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode event meta: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`UPDATE ledger_events SET published = TRUE WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}
