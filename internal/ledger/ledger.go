// Package ledger persists alert firings and snoozes between ticks.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
)

// ErrEventNotFound is returned when marking an event that was never claimed
var ErrEventNotFound = errors.New("alert event not found")

// Policy decides which past events hold a rule in cooldown
type Policy int

const (
	// CooldownDelivered counts delivered and in-flight events. A failed send is retried on the next tick.
	CooldownDelivered Policy = iota
	// CooldownAll counts every event regardless of the dispatch outcome
	CooldownAll
)

func (p Policy) String() string {
	if p == CooldownAll {
		return "all"
	}
	return "delivered"
}

// Blocks reports whether e holds its rule in cooldown under p
func (p Policy) Blocks(e domain.AlertEvent) bool {
	if p == CooldownAll {
		return true
	}
	return e.Sent || e.Pending()
}

// Ledger is the persisted alert history and snooze table.
// All errors it returns mean the ledger is unavailable.
type Ledger interface {
	// RecentlyFired reports whether rule has a blocking event with triggered_at in [now-cooldown, now]
	RecentlyFired(ctx context.Context, rule string, cooldown time.Duration, now time.Time) (bool, error)
	// IsSnoozed reports whether rule, or every rule, is snoozed past now
	IsSnoozed(ctx context.Context, rule string, now time.Time) (bool, error)
	// Record appends e unless an event with the same rule and triggered_at exists
	Record(ctx context.Context, e domain.AlertEvent) (bool, error)
	// Claim atomically checks the cooldown and appends a pending event triggered at now.
	// It returns false when the rule is in cooldown or the event already exists.
	Claim(ctx context.Context, rule string, cooldown time.Duration, now time.Time, message string) (*domain.AlertEvent, bool, error)
	// MarkDispatched records the delivery outcome of a claimed event
	MarkDispatched(ctx context.Context, id uint, sent bool, at time.Time) error
	// Snooze upserts the snooze of rule with until = now + d
	Snooze(ctx context.Context, rule string, d time.Duration, now time.Time, reason string) (domain.Snooze, error)
	// Unsnooze clears active snoozes of rule, or all of them for AllRules or an empty name
	Unsnooze(ctx context.Context, rule string, now time.Time) (int, error)
	ActiveSnoozes(ctx context.Context, now time.Time) ([]domain.Snooze, error)
	// History returns events of rule (all rules when empty) triggered at or after since, oldest first
	History(ctx context.Context, rule string, since time.Time) ([]domain.AlertEvent, error)
}

func clearsAll(rule string) bool {
	return rule == "" || rule == domain.AllRules
}
