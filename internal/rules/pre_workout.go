package rules

import (
	"fmt"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/utils"
)

// PreWorkout warns about a low-ish reading close to the usual workout start time.
// It never runs on the periodic tick.
type PreWorkout struct {
	cooldown     time.Duration
	history      time.Duration
	proximity    int // minutes
	lowThreshold int
	maxAge       time.Duration
	loc          *time.Location
}

func NewPreWorkout(cfg config.PreWorkoutConfig, loc *time.Location) *PreWorkout {
	return &PreWorkout{
		cooldown:     config.Minutes(cfg.CooldownMinutes),
		history:      time.Duration(cfg.HistoryDays) * 24 * time.Hour,
		proximity:    cfg.ProximityMinutes,
		lowThreshold: cfg.LowThreshold,
		maxAge:       config.Minutes(cfg.MaxReadingAgeMinutes),
		loc:          loc,
	}
}

func (r *PreWorkout) Name() string            { return NamePreWorkout }
func (r *PreWorkout) Cooldown() time.Duration { return r.cooldown }
func (r *PreWorkout) ManualOnly() bool        { return true }

func (r *PreWorkout) Requirements() Requirements {
	return Requirements{Lookback: r.maxAge, WorkoutHistory: r.history}
}

// typicalStart is the circular mean of local workout start times, in minutes since midnight
func (r *PreWorkout) typicalStart(w Window) (int, bool) {
	starts := make([]int, 0, len(w.Workouts))
	for _, wo := range w.Workouts {
		if wo.StartedAt.IsZero() {
			continue
		}
		starts = append(starts, utils.MinuteOfDay(wo.StartedAt, r.loc))
	}
	return utils.CircularMeanMinute(starts)
}

func (r *PreWorkout) Evaluate(w Window, now time.Time) Decision {
	latest := w.Latest()
	if latest == nil || now.Sub(latest.Timestamp) > r.maxAge {
		return quiet()
	}
	typical, ok := r.typicalStart(w)
	if !ok {
		return quiet()
	}

	nowMin := utils.MinuteOfDay(now, r.loc)
	distance := utils.MinuteDistance(nowMin, typical)
	if distance > r.proximity || latest.Value >= r.lowThreshold {
		return quiet()
	}

	// signed: negative means the usual start is still ahead
	proximity := distance
	if (nowMin-typical+1440)%1440 > 720 {
		proximity = -distance
	}

	var when string
	switch {
	case proximity < 0:
		when = fmt.Sprintf("in %d min", -proximity)
	case proximity > 0:
		when = fmt.Sprintf("%d min ago", proximity)
	default:
		when = "now"
	}
	start := time.Date(2000, 1, 1, typical/60, typical%60, 0, 0, r.loc)
	msg := fmt.Sprintf("🏃 Heading into typical workout time (%s, %s) with BG at %d%s (%s). Consider a small snack if training soon.",
		start.Format("3:04pm"), when, latest.Value, arrow(w.Readings), clock(latest.Timestamp, r.loc))

	return Decision{
		Fires:   true,
		Message: msg,
		Fields: map[string]any{
			"current":       latest.Value,
			"typical_start": start.Format("15:04"),
			"proximity_min": proximity,
		},
	}
}
