// Package quality scores how fresh a data point is relative to the
// delays the upstream index API normally exhibits per timeframe.
package quality

import (
	"time"

	"cryptomonitor/internal/models"
)

// MinScore is the lowest score a data point may have and still be stored.
const MinScore = 0.5

// Typical publication delay of the upstream API per timeframe.
var apiDelays = map[models.Timeframe]time.Duration{
	models.TimeframeMinute: 2 * time.Minute,
	models.TimeframeHour:   5 * time.Minute,
	models.TimeframeDay:    time.Hour,
}

// Lag within this bound still counts as fresh (score 1.0).
var freshThresholds = map[models.Timeframe]time.Duration{
	models.TimeframeMinute: 5 * time.Minute,
	models.TimeframeHour:   15 * time.Minute,
	models.TimeframeDay:    2 * time.Hour,
}

// Beyond this lag the score bottoms out at 0.
var maxAcceptableLags = map[models.Timeframe]time.Duration{
	models.TimeframeMinute: 10 * time.Minute,
	models.TimeframeHour:   30 * time.Minute,
	models.TimeframeDay:    4 * time.Hour,
}

const (
	defaultFreshThreshold = 10 * time.Minute
	defaultMaxLag         = 15 * time.Minute
	defaultAPIDelay       = 5 * time.Minute
)

// Freshness returns the lag of a data point and whether it is still
// considered fresh for the given timeframe.
func Freshness(ts time.Time, tf models.Timeframe, now time.Time) (time.Duration, bool) {
	threshold, ok := freshThresholds[tf]
	if !ok {
		threshold = defaultFreshThreshold
	}
	lag := now.Sub(ts)
	return lag, lag <= threshold
}

// Score rates a data point in [0, 1]. Fresh data scores 1.0; stale data
// decays linearly down to 0 at the maximum acceptable lag.
func Score(ts time.Time, tf models.Timeframe, now time.Time) float64 {
	lag, fresh := Freshness(ts, tf, now)
	if fresh {
		return 1.0
	}

	maxLag, ok := maxAcceptableLags[tf]
	if !ok {
		maxLag = defaultMaxLag
	}
	if lag >= maxLag {
		return 0.0
	}

	score := 1.0 - lag.Seconds()/maxLag.Seconds()
	if score < 0 {
		return 0.0
	}
	return score
}

// Acceptable reports whether a data point scores high enough to store.
func Acceptable(ts time.Time, tf models.Timeframe, now time.Time) bool {
	return Score(ts, tf, now) >= MinScore
}

// ExpectedLatest returns the newest bucket timestamp the API should be
// able to serve right now, accounting for its publication delay and
// truncating to the timeframe boundary.
func ExpectedLatest(tf models.Timeframe, now time.Time) time.Time {
	delay, ok := apiDelays[tf]
	if !ok {
		delay = defaultAPIDelay
	}
	adjusted := now.Add(-delay).UTC()

	switch tf {
	case models.TimeframeMinute:
		return adjusted.Truncate(time.Minute)
	case models.TimeframeHour:
		return adjusted.Truncate(time.Hour)
	case models.TimeframeDay:
		return time.Date(adjusted.Year(), adjusted.Month(), adjusted.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return adjusted
	}
}
