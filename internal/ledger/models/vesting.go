package models

import (
	"braza/internal/ledger/numeric"
	"braza/pkg/domain"
)

// VestingState is the schedule's lifecycle position.
type VestingState string

const (
	VestingPending     VestingState = "pending"
	VestingCliffLocked VestingState = "cliff_locked"
	VestingReleasing   VestingState = "releasing"
	VestingCompleted   VestingState = "completed"
	VestingRevoked     VestingState = "revoked"
)

// VestingSchedule locks a fixed amount that unlocks linearly after a cliff.
// The beneficiary's raw balance holds the full amount from creation; the
// schedule's unreleased remainder is what keeps it unspendable.
type VestingSchedule struct {
	ID          domain.ScheduleID
	Beneficiary domain.Address
	Total       domain.Amount
	Released    domain.Amount
	// StartSeq is the creation sequence; CliffSeq = StartSeq + cliff offset.
	// Linear release runs from CliffSeq over Duration sequences.
	StartSeq domain.Sequence
	CliffSeq domain.Sequence
	Duration domain.Sequence
	Revocable bool
	Revoked   bool
}

// UnlockedAt returns how much of Total has vested by the given sequence.
// Monotonically non-decreasing in now until the schedule is revoked; once
// revoked it freezes at the released amount.
func (s VestingSchedule) UnlockedAt(now domain.Sequence) domain.Amount {
	if s.Revoked {
		return s.Released
	}
	if now < s.CliffSeq {
		return 0
	}
	elapsed := now - s.CliffSeq
	if elapsed >= s.Duration {
		return s.Total
	}
	// floor(total * elapsed / duration); wide intermediate, see numeric.
	unlocked, err := numeric.MulDiv(s.Total, uint64(elapsed), uint64(s.Duration))
	if err != nil {
		return 0
	}
	return unlocked
}

// ReleasableAt returns the amount a release at the given sequence would move
// from locked to spendable.
func (s VestingSchedule) ReleasableAt(now domain.Sequence) domain.Amount {
	unlocked := s.UnlockedAt(now)
	if unlocked <= s.Released {
		return 0
	}
	return unlocked - s.Released
}

// LockedRemainder is the schedule's contribution to the beneficiary's locked
// amount: everything not yet released. Zero once terminal.
func (s VestingSchedule) LockedRemainder() domain.Amount {
	if s.Terminal() {
		return 0
	}
	return s.Total - s.Released
}

// Terminal reports whether the schedule can never move funds again.
func (s VestingSchedule) Terminal() bool {
	return s.Revoked || s.Released >= s.Total
}

// StateAt classifies the schedule at the given sequence.
func (s VestingSchedule) StateAt(now domain.Sequence) VestingState {
	switch {
	case s.Revoked:
		return VestingRevoked
	case s.Released >= s.Total:
		return VestingCompleted
	case now < s.StartSeq:
		return VestingPending
	case now < s.CliffSeq:
		return VestingCliffLocked
	default:
		return VestingReleasing
	}
}
