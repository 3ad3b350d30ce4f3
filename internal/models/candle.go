package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies the bucketing granularity of a candle series
type Timeframe string

const (
	TimeframeMinute Timeframe = "minute"
	TimeframeHour   Timeframe = "hour"
	TimeframeDay    Timeframe = "day"
)

// Timeframes lists all supported granularities, finest first
var Timeframes = []Timeframe{TimeframeMinute, TimeframeHour, TimeframeDay}

// ParseTimeframe validates a user-supplied timeframe string
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TimeframeMinute, TimeframeHour, TimeframeDay:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("unsupported timeframe: %q", s)
}

// Table returns the candle table backing this timeframe
func (tf Timeframe) Table() string {
	return "candles_" + string(tf)
}

// Candle represents one OHLCV bucket for a symbol
type Candle struct {
	ID          int             `json:"-"`
	Symbol      string          `json:"symbol"`
	BucketTime  time.Time       `json:"-"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"-"`
	CreatedAt   time.Time       `json:"-"`
}

// MarshalJSON mirrors the chart row format: ISO date plus epoch millis
func (c Candle) MarshalJSON() ([]byte, error) {
	type alias Candle
	return json.Marshal(struct {
		alias
		Date        string `json:"date"`
		TimestampMs int64  `json:"timestamp_ms"`
	}{
		alias:       alias(c),
		Date:        c.BucketTime.UTC().Format(time.RFC3339),
		TimestampMs: c.BucketTime.UnixMilli(),
	})
}

// UnmarshalJSON restores the bucket time from the wire shape so cached
// series round-trip cleanly.
func (c *Candle) UnmarshalJSON(data []byte) error {
	type alias Candle
	aux := struct {
		*alias
		TimestampMs int64 `json:"timestamp_ms"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TimestampMs != 0 {
		c.BucketTime = time.UnixMilli(aux.TimestampMs).UTC()
	}
	return nil
}
