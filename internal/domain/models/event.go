package models

import "time"

// Event types published to the event stream.
const (
	EventForecastIssued   = "forecast.issued"
	EventForecastResolved = "forecast.resolved"
	EventTradeClosed      = "trade.closed"
	EventErrorDigest      = "log.digest"
)

// Event is the envelope for anything published to Kafka or the websocket feed.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Symbol     string      `json:"symbol,omitempty"`
	Group      string      `json:"group,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}
