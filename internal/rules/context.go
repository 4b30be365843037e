package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	"github.com/vladimiradmaev/glucose-alerts/internal/utils"
)

// insulinModel estimates insulin on board with linear decay over the active insulin time
type insulinModel struct {
	active      time.Duration
	sensitivity float64 // mg/dL dropped per unit
	target      int
	corrections time.Duration // how far back the last correction is reported
}

func newInsulinModel(cfg config.InsulinConfig) insulinModel {
	return insulinModel{
		active:      config.Minutes(cfg.ActiveMinutes),
		sensitivity: cfg.SensitivityFactor,
		target:      cfg.TargetBG,
		corrections: config.Minutes(cfg.CorrectionLookbackMinutes),
	}
}

// history is the dose lookback the model needs
func (m insulinModel) history() time.Duration {
	return max(m.active, m.corrections)
}

// IOB sums the remaining fraction of bolus and correction doses taken in (now-active, now]
func (m insulinModel) IOB(doses []domain.InsulinDose, now time.Time) float64 {
	var total float64
	for _, d := range doses {
		if d.Type != domain.DoseBolus && d.Type != domain.DoseCorrection {
			continue
		}
		elapsed := now.Sub(d.Timestamp)
		if elapsed < 0 || elapsed >= m.active {
			continue
		}
		total += d.Units * (1 - float64(elapsed)/float64(m.active))
	}
	return math.Round(total*100) / 100
}

// note renders the IOB line appended to alert messages
func (m insulinModel) note(iob float64) string {
	if iob <= 0 {
		return "IOB: no recent doses."
	}
	return fmt.Sprintf("IOB ~%.1fu (est. drop ~%.0f mg/dL).", iob, iob*m.sensitivity)
}

// correction suggests the units that bring bg to the target, less insulin on board
func (m insulinModel) correction(bg int, iob float64) float64 {
	if m.sensitivity <= 0 {
		return 0
	}
	needed := float64(bg-m.target)/m.sensitivity - iob
	return math.Round(max(0, needed)*10) / 10
}

// lastCorrection returns the latest correction dose in (now-corrections, now]
func (m insulinModel) lastCorrection(doses []domain.InsulinDose, now time.Time) *domain.InsulinDose {
	var last *domain.InsulinDose
	for i := range doses {
		d := &doses[i]
		if d.Type != domain.DoseCorrection || d.Timestamp.After(now) || !d.Timestamp.After(now.Add(-m.corrections)) {
			continue
		}
		if last == nil || d.Timestamp.After(last.Timestamp) {
			last = d
		}
	}
	return last
}

// contextLine renders the IOB note followed by the last correction, if any
func (m insulinModel) contextLine(doses []domain.InsulinDose, now time.Time, loc *time.Location) string {
	line := m.note(m.IOB(doses, now))
	if d := m.lastCorrection(doses, now); d != nil {
		line += fmt.Sprintf(" Last correction: %.1fu at %s.", d.Units, clock(d.Timestamp, loc))
	}
	return line
}

// trendRate returns the mg/dL change per 15 minutes at the latest reading.
// The sensor trend wins when known; otherwise the slope of the last three readings is used.
func trendRate(readings []domain.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	latest := readings[len(readings)-1]
	if rate, ok := latest.RatePer15(); ok {
		return rate
	}
	if len(readings) < 2 {
		return 0
	}
	oldest := readings[max(0, len(readings)-3)]
	span := latest.Timestamp.Sub(oldest.Timestamp)
	if span <= 0 {
		return 0
	}
	rate := float64(latest.Value-oldest.Value) / span.Minutes() * 15
	return math.Round(rate*10) / 10
}

func describeRate(rate float64) string {
	switch {
	case rate > 5:
		return "rising"
	case rate < -5:
		return "falling"
	default:
		return "stable"
	}
}

// arrow prefers the sensor arrow, falling back to one derived from the rate
func arrow(readings []domain.Reading) string {
	if len(readings) == 0 {
		return ""
	}
	latest := readings[len(readings)-1]
	if latest.Trend != domain.TrendUnknown && latest.Trend != "" {
		return latest.Arrow()
	}
	switch describeRate(trendRate(readings)) {
	case "rising":
		return "↗"
	case "falling":
		return "↘"
	default:
		return "→"
	}
}

func clock(t time.Time, loc *time.Location) string {
	return utils.FormatClock(t, loc)
}

func minutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
