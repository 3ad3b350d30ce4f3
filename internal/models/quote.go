package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Quote represents one observed price for an asset at one point in time
type Quote struct {
	ID        int             `json:"-"`
	Name      string          `json:"name"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	Timestamp time.Time       `json:"-"`
	CreatedAt time.Time       `json:"-"`
}

// MarshalJSON emits the wire shape the frontend charts expect: a decimal
// price plus both an ISO date and an epoch-millisecond timestamp.
func (q Quote) MarshalJSON() ([]byte, error) {
	type alias Quote
	return json.Marshal(struct {
		alias
		Date        string `json:"date"`
		TimestampMs int64  `json:"timestamp_ms"`
	}{
		alias:       alias(q),
		Date:        q.Timestamp.UTC().Format(time.RFC3339),
		TimestampMs: q.Timestamp.UnixMilli(),
	})
}

// UnmarshalJSON restores the timestamp from the wire shape so cached
// quotes round-trip cleanly.
func (q *Quote) UnmarshalJSON(data []byte) error {
	type alias Quote
	aux := struct {
		*alias
		TimestampMs int64 `json:"timestamp_ms"`
	}{alias: (*alias)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TimestampMs != 0 {
		q.Timestamp = time.UnixMilli(aux.TimestampMs).UTC()
	}
	return nil
}

// QuoteEvent is published to Kafka after a realtime scrape tick
type QuoteEvent struct {
	EventType string    `json:"event_type"`
	Quote     *Quote    `json:"quote,omitempty"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
}
