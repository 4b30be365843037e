package engine

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of one rule in one tick
type Status string

const (
	StatusSnoozed   Status = "snoozed"
	StatusCooldown  Status = "cooldown"
	StatusNoData    Status = "no_data"
	StatusQuiet     Status = "quiet"
	StatusWouldFire Status = "would_fire"
	StatusFired     Status = "fired"
	StatusFailed    Status = "failed" // claimed but not delivered
	StatusDuplicate Status = "duplicate"
)

// Result is what happened to one rule
type Result struct {
	Rule    string
	Status  Status
	Message string
	Fields  map[string]any
	EventID uint
	Err     error
}

// Report summarizes one tick
type Report struct {
	RunID   string
	Now     time.Time
	DryRun  bool
	Results []Result
}

// Count returns the number of results with status s
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Fired returns the results that produced an alert, delivered or not.
// In dry-run mode these are the rules that would fire.
func (r *Report) Fired() []Result {
	var fired []Result
	for _, res := range r.Results {
		switch res.Status {
		case StatusFired, StatusFailed, StatusWouldFire:
			fired = append(fired, res)
		}
	}
	return fired
}

// Summary is the one-line human summary printed by the CLI
func (r *Report) Summary() string {
	mode := "LIVE"
	if r.DryRun {
		mode = "DRY RUN"
	}
	return fmt.Sprintf("[%s] Checked %d rules. %d alert(s) triggered.", mode, len(r.Results), len(r.Fired()))
}

// String renders one line per rule, with the alert message for fired rules
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString(r.Summary())
	for _, res := range r.Results {
		fmt.Fprintf(&b, "\n  %-22s %s", res.Rule, res.Status)
		if res.Err != nil {
			fmt.Fprintf(&b, " (%v)", res.Err)
		}
		if res.Message != "" {
			fmt.Fprintf(&b, "\n    %s", strings.ReplaceAll(res.Message, "\n", "\n    "))
		}
	}
	return b.String()
}
