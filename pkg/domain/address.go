package domain

import (
	"fmt"
	"strings"
	"time"
)

// Address identifies an account on the ledger. It is a domain primitive that
// enforces validity at parse time; the host runtime is responsible for proving
// the caller actually controls it.
type Address string

// MaxAddressLen bounds stored keys so a hostile caller cannot inflate
// per-entry storage cost.
const MaxAddressLen = 64

// ParseAddress validates and returns an Address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("address is empty")
	}
	if len(s) > MaxAddressLen {
		return "", fmt.Errorf("address exceeds %d characters", MaxAddressLen)
	}
	for _, r := range s {
		if !isAddressRune(r) {
			return "", fmt.Errorf("address contains invalid character %q", r)
		}
	}
	return Address(s), nil
}

func isAddressRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == ':':
		return true
	}
	return false
}

// String returns the string representation of the address.
func (a Address) String() string {
	return string(a)
}

// IsNil returns true if the address is empty.
func (a Address) IsNil() bool {
	return a == ""
}

// ScheduleID indexes a vesting schedule within one beneficiary's arena.
// IDs are dense: the Nth schedule created for an address has ID N-1.
type ScheduleID uint32

// Sequence is the host ledger's monotonically non-decreasing clock. Vesting
// unlocks and daily-window rollover are computed against it, never against
// wall time.
type Sequence uint64

// SequencesPerDay is the number of ledger sequences in one compliance day
// (~5s per sequence, matching the host chain's cadence).
const SequencesPerDay Sequence = 17_280

// SecondsPerSequence is the wall-time length of one ledger sequence.
const SecondsPerSequence = 5

// SequenceAt maps wall time onto the ledger clock. Used when no host
// sequence accompanies the invocation.
func SequenceAt(t time.Time) Sequence {
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return Sequence(unix / SecondsPerSequence)
}

// WindowStart returns the start of the compliance day containing s.
func (s Sequence) WindowStart() Sequence {
	return s - s%SequencesPerDay
}
