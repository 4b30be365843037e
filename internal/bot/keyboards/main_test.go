package keyboards

import "testing"

func TestSnoozeDataRoundTrip(t *testing.T) {
	rule, minutes, ok := ParseSnoozeData(SnoozeData("RAPID_DROP", 60))
	if !ok || rule != "RAPID_DROP" || minutes != 60 {
		t.Fatalf("got %q %d %v", rule, minutes, ok)
	}

	for _, bad := range []string{"", "snooze", "snooze::60", "snooze:RAPID_DROP:x", "unsnooze:RAPID_DROP", "other:RAPID_DROP:60"} {
		if _, _, ok := ParseSnoozeData(bad); ok {
			t.Errorf("ParseSnoozeData(%q) accepted", bad)
		}
	}
}

func TestSnoozeMenu(t *testing.T) {
	kb := SnoozeMenu("SUSTAINED_HIGH")
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("want 2 rows, got %d", len(kb.InlineKeyboard))
	}
	first := kb.InlineKeyboard[0]
	if len(first) != len(SnoozeDurations) {
		t.Fatalf("want %d buttons, got %d", len(SnoozeDurations), len(first))
	}
	if first[0].Text != "💤 30m" || first[2].Text != "💤 2h" {
		t.Errorf("labels: %q %q", first[0].Text, first[2].Text)
	}
	if data := first[1].CallbackData; data == nil || *data != "snooze:SUSTAINED_HIGH:60" {
		t.Errorf("callback data: %v", data)
	}
}

func TestUnsnoozeData(t *testing.T) {
	rule, ok := ParseUnsnoozeData(UnsnoozeData("ALL"))
	if !ok || rule != "ALL" {
		t.Fatalf("got %q %v", rule, ok)
	}
	for _, bad := range []string{"", "unsnooze:", "snooze:ALL:60"} {
		if _, ok := ParseUnsnoozeData(bad); ok {
			t.Errorf("ParseUnsnoozeData(%q) accepted", bad)
		}
	}

	kb := SnoozesMenu([]string{"RAPID_DROP"})
	if data := kb.InlineKeyboard[0][0].CallbackData; data == nil || *data != "unsnooze:RAPID_DROP" {
		t.Errorf("callback data: %v", data)
	}
}
