package utils

import (
	"math"
	"time"
)

const minutesPerDay = 24 * 60

// MinuteOfDay returns minutes since local midnight of t in loc.
// The conversion goes through the zone database so DST shifts are respected.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// InClockWindow reports whether the local clock time of t lies in [startMin, endMin),
// both given as minutes since midnight. Windows that cross midnight (23:00 -> 07:00) are supported.
func InClockWindow(t time.Time, loc *time.Location, startMin, endMin int) bool {
	m := MinuteOfDay(t, loc)
	if startMin <= endMin {
		return m >= startMin && m < endMin
	}
	return m >= startMin || m < endMin
}

// MinuteDistance returns the shortest distance in minutes between two minute-of-day values
func MinuteDistance(a, b int) int {
	d := (a - b) % minutesPerDay
	if d < 0 {
		d += minutesPerDay
	}
	if d > minutesPerDay/2 {
		d = minutesPerDay - d
	}
	return d
}

// CircularMeanMinute averages minute-of-day values on the 24h clock so that
// 23:50 and 00:10 average to midnight rather than noon.
// ok is false when the input is empty or the values cancel out.
func CircularMeanMinute(minutes []int) (int, bool) {
	if len(minutes) == 0 {
		return 0, false
	}
	var sinSum, cosSum float64
	for _, m := range minutes {
		angle := 2 * math.Pi * float64(m) / minutesPerDay
		sinSum += math.Sin(angle)
		cosSum += math.Cos(angle)
	}
	if math.Hypot(sinSum, cosSum) < 1e-9 {
		return 0, false
	}
	angle := math.Atan2(sinSum, cosSum)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	mean := int(math.Round(angle*minutesPerDay/(2*math.Pi))) % minutesPerDay
	return mean, true
}

// FormatClock renders t as a short local clock time, e.g. "2:05am"
func FormatClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("3:04pm")
}
