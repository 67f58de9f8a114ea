// Package events defines the ledger's append-only notification stream.
// Events are recorded inside the mutating unit of work, so a rolled-back
// invocation leaves no trace and the log reads as a strict success audit
// trail. External fan-out happens after commit (see worker.go).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"braza/pkg/domain"
)

// Topic names a state transition.
type Topic string

const (
	TopicInitialized     Topic = "initialized"
	TopicTransfer        Topic = "transfer"
	TopicApproval        Topic = "approval"
	TopicMint            Topic = "mint"
	TopicBurn            Topic = "burn"
	TopicPaused          Topic = "paused"
	TopicUnpaused        Topic = "unpaused"
	TopicAdminChanged    Topic = "admin_changed"
	TopicFeeCollectorSet Topic = "fee_collector_set"
	TopicVestingCreated  Topic = "vesting_created"
	TopicVestingReleased Topic = "vesting_released"
	TopicVestingRevoked  Topic = "vesting_revoked"
	TopicKYCSet          Topic = "kyc_set"
	TopicCountrySet      Topic = "country_set"
	TopicRiskScoreSet    Topic = "risk_score_set"
	TopicDailyLimitSet   Topic = "daily_limit_set"
	TopicBlacklisted     Topic = "blacklisted"
	TopicUnblacklisted   Topic = "unblacklisted"
	TopicCountryAllowed  Topic = "country_allowed"
	TopicCountryRemoved  Topic = "country_removed"
	TopicForceTransfer   Topic = "force_transfer"
	TopicForceBurn       Topic = "force_burn"
)

// Event is one committed state transition. Keep it transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	ID       uuid.UUID         `json:"id"`
	Topic    Topic             `json:"topic"`
	Sequence domain.Sequence   `json:"sequence"`
	At       time.Time         `json:"at"`
	Actor    domain.Address    `json:"actor,omitempty"`
	Subject  domain.Address    `json:"subject,omitempty"`
	Other    domain.Address    `json:"other,omitempty"`
	Amount   domain.Amount     `json:"amount,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// New builds an event with a fresh ID and timestamp.
func New(topic Topic, seq domain.Sequence) Event {
	return Event{
		ID:       uuid.New(),
		Topic:    topic,
		Sequence: seq,
		At:       time.Now().UTC(),
	}
}

// WithActor sets the authenticated caller that triggered the transition.
func (e Event) WithActor(a domain.Address) Event { e.Actor = a; return e }

// WithSubject sets the primary account the transition applies to.
func (e Event) WithSubject(a domain.Address) Event { e.Subject = a; return e }

// WithOther sets the counterparty account, when one exists.
func (e Event) WithOther(a domain.Address) Event { e.Other = a; return e }

// WithAmount sets the bra amount moved by the transition.
func (e Event) WithAmount(amt domain.Amount) Event { e.Amount = amt; return e }

// WithMeta attaches one key/value detail pair.
func (e Event) WithMeta(k, v string) Event {
	if e.Meta == nil {
		e.Meta = make(map[string]string, 1)
	}
	e.Meta[k] = v
	return e
}

// Sink records events within the active unit of work. A sink error aborts
// the invocation: the event log and the ledger state commit or roll back
// together.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Publisher delivers committed events to an external transport. Delivery is
// at-least-once and happens outside the unit of work.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
