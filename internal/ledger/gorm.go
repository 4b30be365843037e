package ledger

import (
	"context"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/database"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger stores the ledger in the alert_events, alert_snoozes and alert_rule_locks tables
type GormLedger struct {
	db     *gorm.DB
	policy Policy
}

// NewGormLedger creates a ledger over an already migrated database
func NewGormLedger(db *gorm.DB, policy Policy) *GormLedger {
	return &GormLedger{db: db, policy: policy}
}

// blocking narrows q to events that hold a rule in cooldown
func (l *GormLedger) blocking(q *gorm.DB) *gorm.DB {
	if l.policy == CooldownAll {
		return q
	}
	return q.Where("(sent = ? OR dispatched_at IS NULL)", true)
}

func (l *GormLedger) countBlocking(tx *gorm.DB, rule string, cooldown time.Duration, now time.Time) (int64, error) {
	var count int64
	q := tx.Model(&database.AlertEvent{}).
		Where("rule_name = ? AND triggered_at >= ? AND triggered_at <= ?", rule, now.Add(-cooldown).UTC(), now.UTC())
	err := l.blocking(q).Count(&count).Error
	return count, err
}

// countClaimBlocking also counts events after now, committed by an overlapping tick with a later clock
func (l *GormLedger) countClaimBlocking(tx *gorm.DB, rule string, cooldown time.Duration, now time.Time) (int64, error) {
	var count int64
	q := tx.Model(&database.AlertEvent{}).
		Where("rule_name = ? AND triggered_at >= ?", rule, now.Add(-cooldown).UTC())
	err := l.blocking(q).Count(&count).Error
	return count, err
}

func (l *GormLedger) RecentlyFired(ctx context.Context, rule string, cooldown time.Duration, now time.Time) (bool, error) {
	count, err := l.countBlocking(l.db.WithContext(ctx), rule, cooldown, now)
	if err != nil {
		return false, apperrors.NewLedgerError(err, "cooldown check").WithContext("rule", rule)
	}
	return count > 0, nil
}

func (l *GormLedger) IsSnoozed(ctx context.Context, rule string, now time.Time) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&database.AlertSnooze{}).
		Where("rule_name IN ? AND expires_at > ?", []string{rule, domain.AllRules}, now.UTC()).
		Count(&count).Error
	if err != nil {
		return false, apperrors.NewLedgerError(err, "snooze check").WithContext("rule", rule)
	}
	return count > 0, nil
}

func (l *GormLedger) Record(ctx context.Context, e domain.AlertEvent) (bool, error) {
	row := toRow(e)
	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, apperrors.NewLedgerError(res.Error, "record").WithContext("rule", e.RuleName)
	}
	return res.RowsAffected > 0, nil
}

// Claim runs check and insert in one transaction.
// Updating the rule's lock row first makes concurrent claimers of the same rule queue up on
// its row lock, so the second one sees the first one's event.
func (l *GormLedger) Claim(ctx context.Context, rule string, cooldown time.Duration, now time.Time, message string) (*domain.AlertEvent, bool, error) {
	at := now.UTC()
	var claimed *domain.AlertEvent

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock := database.AlertRuleLock{RuleName: rule, LockedAt: at}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
			return err
		}
		if err := tx.Model(&database.AlertRuleLock{}).Where("rule_name = ?", rule).Update("locked_at", at).Error; err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&database.AlertEvent{}).
			Where("rule_name = ? AND triggered_at = ?", rule, at).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		blocking, err := l.countClaimBlocking(tx, rule, cooldown, at)
		if err != nil {
			return err
		}
		if blocking > 0 {
			return nil
		}

		row := database.AlertEvent{RuleName: rule, TriggeredAt: at, Message: message}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		e := fromRow(row)
		claimed = &e
		return nil
	})
	if err != nil {
		return nil, false, apperrors.NewLedgerError(err, "claim").WithContext("rule", rule)
	}
	return claimed, claimed != nil, nil
}

func (l *GormLedger) MarkDispatched(ctx context.Context, id uint, sent bool, at time.Time) error {
	res := l.db.WithContext(ctx).Model(&database.AlertEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"sent": sent, "dispatched_at": at.UTC()})
	if res.Error != nil {
		return apperrors.NewLedgerError(res.Error, "mark dispatched").WithContext("event_id", id)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewLedgerError(ErrEventNotFound, "mark dispatched").WithContext("event_id", id)
	}
	return nil
}

func (l *GormLedger) Snooze(ctx context.Context, rule string, d time.Duration, now time.Time, reason string) (domain.Snooze, error) {
	row := database.AlertSnooze{
		RuleName:  rule,
		SnoozedAt: now.UTC(),
		ExpiresAt: now.Add(d).UTC(),
		Reason:    reason,
	}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rule_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"snoozed_at", "expires_at", "reason"}),
	}).Create(&row).Error
	if err != nil {
		return domain.Snooze{}, apperrors.NewLedgerError(err, "snooze").WithContext("rule", rule)
	}
	return fromSnoozeRow(row), nil
}

func (l *GormLedger) Unsnooze(ctx context.Context, rule string, now time.Time) (int, error) {
	q := l.db.WithContext(ctx).Where("expires_at > ?", now.UTC())
	if !clearsAll(rule) {
		q = q.Where("rule_name = ?", rule)
	}
	res := q.Delete(&database.AlertSnooze{})
	if res.Error != nil {
		return 0, apperrors.NewLedgerError(res.Error, "unsnooze").WithContext("rule", rule)
	}
	return int(res.RowsAffected), nil
}

func (l *GormLedger) ActiveSnoozes(ctx context.Context, now time.Time) ([]domain.Snooze, error) {
	var rows []database.AlertSnooze
	err := l.db.WithContext(ctx).
		Where("expires_at > ?", now.UTC()).
		Order("expires_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.NewLedgerError(err, "list snoozes")
	}
	snoozes := make([]domain.Snooze, 0, len(rows))
	for _, row := range rows {
		snoozes = append(snoozes, fromSnoozeRow(row))
	}
	return snoozes, nil
}

func (l *GormLedger) History(ctx context.Context, rule string, since time.Time) ([]domain.AlertEvent, error) {
	q := l.db.WithContext(ctx).Where("triggered_at >= ?", since.UTC())
	if rule != "" {
		q = q.Where("rule_name = ?", rule)
	}
	var rows []database.AlertEvent
	if err := q.Order("triggered_at ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.NewLedgerError(err, "history").WithContext("rule", rule)
	}
	events := make([]domain.AlertEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, fromRow(row))
	}
	return events, nil
}

func toRow(e domain.AlertEvent) database.AlertEvent {
	row := database.AlertEvent{
		RuleName:    e.RuleName,
		TriggeredAt: e.TriggeredAt.UTC(),
		Message:     e.Message,
		Sent:        e.Sent,
	}
	if e.DispatchedAt != nil {
		at := e.DispatchedAt.UTC()
		row.DispatchedAt = &at
	}
	return row
}

func fromRow(row database.AlertEvent) domain.AlertEvent {
	e := domain.AlertEvent{
		ID:          row.ID,
		RuleName:    row.RuleName,
		TriggeredAt: row.TriggeredAt.UTC(),
		Message:     row.Message,
		Sent:        row.Sent,
	}
	if row.DispatchedAt != nil {
		at := row.DispatchedAt.UTC()
		e.DispatchedAt = &at
	}
	return e
}

func fromSnoozeRow(row database.AlertSnooze) domain.Snooze {
	return domain.Snooze{
		RuleName:  row.RuleName,
		SnoozedAt: row.SnoozedAt.UTC(),
		Until:     row.ExpiresAt.UTC(),
		Reason:    row.Reason,
	}
}
