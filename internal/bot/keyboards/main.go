package keyboards

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SnoozePrefix starts the callback data of snooze buttons: snooze:RULE:MINUTES
const SnoozePrefix = "snooze"

// UnsnoozePrefix starts the callback data of unsnooze buttons: unsnooze:RULE
const UnsnoozePrefix = "unsnooze"

// SnoozeDurations are the inline snooze choices, in minutes
var SnoozeDurations = []int{30, 60, 120}

// SnoozeData builds the callback data of a snooze button
func SnoozeData(rule string, minutes int) string {
	return fmt.Sprintf("%s:%s:%d", SnoozePrefix, rule, minutes)
}

// ParseSnoozeData reverses SnoozeData
func ParseSnoozeData(data string) (rule string, minutes int, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != SnoozePrefix || parts[1] == "" {
		return "", 0, false
	}
	minutes, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, false
	}
	return parts[1], minutes, true
}

// UnsnoozeData builds the callback data of an unsnooze button
func UnsnoozeData(rule string) string {
	return UnsnoozePrefix + ":" + rule
}

// ParseUnsnoozeData reverses UnsnoozeData
func ParseUnsnoozeData(data string) (rule string, ok bool) {
	rule, ok = strings.CutPrefix(data, UnsnoozePrefix+":")
	return rule, ok && rule != ""
}

// SnoozeMenu creates the keyboard attached to alert messages
func SnoozeMenu(rule string) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(SnoozeDurations))
	for _, m := range SnoozeDurations {
		label := fmt.Sprintf("💤 %dm", m)
		if m%60 == 0 {
			label = fmt.Sprintf("💤 %dh", m/60)
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, SnoozeData(rule, m)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		row,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔕 Snooze all 1h", SnoozeData("ALL", 60)),
		),
	)
}

// SnoozesMenu creates the keyboard listing active snoozes, one unsnooze button each
func SnoozesMenu(rules []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, rule := range rules {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔔 Unsnooze "+rule, UnsnoozeData(rule)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
