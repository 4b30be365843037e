package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISPATCH_CHANNEL", "telegram")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ALERT_CHAT_ID", "424242")
	t.Setenv("RULES_FILE", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DISPLAY_TIMEZONE", "")
	t.Setenv("READ_TIMEOUT_SECONDS", "")
	t.Setenv("DISPATCH_TIMEOUT_SECONDS", "")
	t.Setenv("RETRY_FAILED_SENDS", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DB.Driver != DriverPostgres {
		t.Errorf("default driver: want postgres, got %s", cfg.DB.Driver)
	}
	if cfg.DisplayTimezone != "America/New_York" {
		t.Errorf("default timezone: want America/New_York, got %s", cfg.DisplayTimezone)
	}
	if cfg.Dispatch.Timeout != 10*time.Second {
		t.Errorf("default dispatch timeout: want 10s, got %s", cfg.Dispatch.Timeout)
	}
	if !cfg.Engine.RetryFailedSends {
		t.Error("failed sends should be retried by default")
	}
	if cfg.Rules.SustainedHigh.AverageThreshold != 200 {
		t.Errorf("sustained_high.average_threshold: want 200, got %v", cfg.Rules.SustainedHigh.AverageThreshold)
	}
	if cfg.Rules.RapidDrop.LookbackMinutes != 30 {
		t.Errorf("rapid_drop.lookback_minutes: want 30, got %d", cfg.Rules.RapidDrop.LookbackMinutes)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"unknown driver", "DB_DRIVER", "oracle", "unknown DB_DRIVER"},
		{"unknown channel", "DISPATCH_CHANNEL", "pager", "unknown DISPATCH_CHANNEL"},
		{"bad timezone", "DISPLAY_TIMEZONE", "Mars/Olympus", "invalid DISPLAY_TIMEZONE"},
		{"bad chat id", "ALERT_CHAT_ID", "me", "ALERT_CHAT_ID"},
		{"zero timeout", "DISPATCH_TIMEOUT_SECONDS", "0", "DISPATCH_TIMEOUT_SECONDS"},
		{"non numeric timeout", "READ_TIMEOUT_SECONDS", "soon", "READ_TIMEOUT_SECONDS"},
		{"bad bool", "RETRY_FAILED_SENDS", "maybe", "RETRY_FAILED_SENDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoadRulesFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	content := `
[rules.sustained_high]
average_threshold = 190
cooldown_minutes = 45

[rules.overnight_high]
start = "22:30"

[rules.rapid_drop]
drop_treshold = 25
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rules := DefaultRules()
	warnings, err := LoadRulesFile(path, &rules)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	if rules.SustainedHigh.AverageThreshold != 190 {
		t.Errorf("average_threshold: want 190, got %v", rules.SustainedHigh.AverageThreshold)
	}
	if rules.SustainedHigh.CooldownMinutes != 45 {
		t.Errorf("cooldown_minutes: want 45, got %d", rules.SustainedHigh.CooldownMinutes)
	}
	if rules.SustainedHigh.CurrentThreshold != 180 {
		t.Errorf("current_threshold should keep default 180, got %d", rules.SustainedHigh.CurrentThreshold)
	}
	if rules.OvernightHigh.Start != "22:30" || rules.OvernightHigh.End != "07:00" {
		t.Errorf("overnight window: got %s-%s", rules.OvernightHigh.Start, rules.OvernightHigh.End)
	}
	if rules.RapidDrop.DropThreshold != 30 {
		t.Errorf("misspelled key must not change drop_threshold, got %d", rules.RapidDrop.DropThreshold)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "drop_treshold") {
		t.Errorf("want one warning about drop_treshold, got %v", warnings)
	}
}

func TestRulesValidate(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	r := DefaultRules()
	r.PostMealSpike.MinOffsetMinutes = 150
	r.OvernightHigh.Start = "25:00"
	err := r.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"post_meal_spike offsets", "overnight_high.start"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("07:30")
	if err != nil || got != 450 {
		t.Errorf("want 450, got %d (err=%v)", got, err)
	}
	if _, err := ParseClock("7pm"); err == nil {
		t.Error("expected error for 7pm")
	}
}

func TestDispatchCredentialsAreCheckedSeparately(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("ALERT_CHAT_ID", "")

	// snooze and status invocations load config without channel credentials
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load without telegram credentials: %v", err)
	}
	err = cfg.ValidateDispatch()
	if err == nil || !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") || !strings.Contains(err.Error(), "ALERT_CHAT_ID") {
		t.Fatalf("dispatch validation: %v", err)
	}

	cfg.Dispatch.Channel = ChannelLog
	if err := cfg.ValidateDispatch(); err != nil {
		t.Errorf("log channel needs no credentials: %v", err)
	}
	cfg.Dispatch.Channel = ChannelNATS
	cfg.Dispatch.NATSSubject = ""
	if err := cfg.ValidateDispatch(); err == nil || !strings.Contains(err.Error(), "NATS_SUBJECT") {
		t.Errorf("nats without subject: %v", err)
	}
}
