package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
)

type eventKey struct {
	rule string
	at   int64
}

// MemoryLedger keeps the ledger in process memory.
// It does not survive restarts and is meant for tests and single-process embedding.
type MemoryLedger struct {
	policy  Policy
	events  []domain.AlertEvent
	keys    map[eventKey]int // index into events
	snoozes map[string]domain.Snooze
	nextID  uint
	mu      sync.RWMutex
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger(policy Policy) *MemoryLedger {
	return &MemoryLedger{
		policy:  policy,
		keys:    make(map[eventKey]int),
		snoozes: make(map[string]domain.Snooze),
	}
}

func keyOf(rule string, at time.Time) eventKey {
	return eventKey{rule: rule, at: at.UTC().UnixNano()}
}

func (m *MemoryLedger) recentlyFired(rule string, cooldown time.Duration, now time.Time) bool {
	from := now.Add(-cooldown)
	for _, e := range m.events {
		if e.RuleName != rule || e.TriggeredAt.Before(from) || e.TriggeredAt.After(now) {
			continue
		}
		if m.policy.Blocks(e) {
			return true
		}
	}
	return false
}

// claimBlocked is recentlyFired without the upper bound, so a later event from an overlapping tick blocks too
func (m *MemoryLedger) claimBlocked(rule string, cooldown time.Duration, now time.Time) bool {
	from := now.Add(-cooldown)
	for _, e := range m.events {
		if e.RuleName == rule && !e.TriggeredAt.Before(from) && m.policy.Blocks(e) {
			return true
		}
	}
	return false
}

func (m *MemoryLedger) RecentlyFired(ctx context.Context, rule string, cooldown time.Duration, now time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentlyFired(rule, cooldown, now), nil
}

func (m *MemoryLedger) IsSnoozed(ctx context.Context, rule string, now time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range []string{rule, domain.AllRules} {
		if s, ok := m.snoozes[name]; ok && s.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryLedger) record(e domain.AlertEvent) (domain.AlertEvent, bool) {
	e.TriggeredAt = e.TriggeredAt.UTC()
	key := keyOf(e.RuleName, e.TriggeredAt)
	if _, exists := m.keys[key]; exists {
		return domain.AlertEvent{}, false
	}
	m.nextID++
	e.ID = m.nextID
	m.keys[key] = len(m.events)
	m.events = append(m.events, e)
	return e, true
}

func (m *MemoryLedger) Record(ctx context.Context, e domain.AlertEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.record(e)
	return ok, nil
}

func (m *MemoryLedger) Claim(ctx context.Context, rule string, cooldown time.Duration, now time.Time, message string) (*domain.AlertEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claimBlocked(rule, cooldown, now) {
		return nil, false, nil
	}
	e, ok := m.record(domain.AlertEvent{RuleName: rule, TriggeredAt: now, Message: message})
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (m *MemoryLedger) MarkDispatched(ctx context.Context, id uint, sent bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			dispatched := at.UTC()
			m.events[i].Sent = sent
			m.events[i].DispatchedAt = &dispatched
			return nil
		}
	}
	return apperrors.NewLedgerError(ErrEventNotFound, "mark dispatched").WithContext("event_id", id)
}

func (m *MemoryLedger) Snooze(ctx context.Context, rule string, d time.Duration, now time.Time, reason string) (domain.Snooze, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := domain.Snooze{RuleName: rule, SnoozedAt: now.UTC(), Until: now.Add(d).UTC(), Reason: reason}
	m.snoozes[rule] = s
	return s, nil
}

func (m *MemoryLedger) Unsnooze(ctx context.Context, rule string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cleared int
	for name, s := range m.snoozes {
		if !s.Active(now) || (!clearsAll(rule) && name != rule) {
			continue
		}
		delete(m.snoozes, name)
		cleared++
	}
	return cleared, nil
}

func (m *MemoryLedger) ActiveSnoozes(ctx context.Context, now time.Time) ([]domain.Snooze, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []domain.Snooze
	for _, s := range m.snoozes {
		if s.Active(now) {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Until.Before(active[j].Until) })
	return active, nil
}

func (m *MemoryLedger) History(ctx context.Context, rule string, since time.Time) ([]domain.AlertEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AlertEvent
	for _, e := range m.events {
		if (rule == "" || e.RuleName == rule) && !e.TriggeredAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TriggeredAt.Before(out[j].TriggeredAt) })
	return out, nil
}
