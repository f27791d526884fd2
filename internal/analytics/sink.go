package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/castlemart/castlemart-backend/pkg/enums"
)

// ErrUnsupportedEventType marks envelopes the sink does not archive. The
// worker acknowledges these instead of retrying.
var ErrUnsupportedEventType = errors.New("unsupported event type")

// Envelope is the decoded outbox event as it arrives off the wire.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// OrderEventRow is one archived lifecycle event in the order events table.
type OrderEventRow struct {
	EventID       string              `bigquery:"event_id"`
	EventType     string              `bigquery:"event_type"`
	AggregateType string              `bigquery:"aggregate_type"`
	AggregateID   string              `bigquery:"aggregate_id"`
	OccurredAt    time.Time           `bigquery:"occurred_at"`
	OrderID       *string             `bigquery:"order_id"`
	UserID        *string             `bigquery:"user_id"`
	AmountCents   cbigquery.NullInt64 `bigquery:"amount_cents"`
	Payload       cbigquery.NullJSON  `bigquery:"payload"`
}

type rowInserter interface {
	Insert(ctx context.Context, row OrderEventRow) error
}

// OrderEventSink flattens order lifecycle envelopes into archive rows.
type OrderEventSink struct {
	writer rowInserter
}

// NewOrderEventSink builds the sink.
func NewOrderEventSink(writer rowInserter) (*OrderEventSink, error) {
	if writer == nil {
		return nil, errors.New("order event writer required")
	}
	return &OrderEventSink{writer: writer}, nil
}

// Handle archives one envelope. Inventory aggregate events flow on the same
// topic but are not part of the order archive.
func (s *OrderEventSink) Handle(ctx context.Context, envelope Envelope) error {
	if envelope.AggregateType != enums.AggregateOrder {
		return ErrUnsupportedEventType
	}
	if !envelope.EventType.IsValid() {
		return ErrUnsupportedEventType
	}

	row, err := buildOrderEventRow(envelope)
	if err != nil {
		return err
	}
	return s.writer.Insert(ctx, row)
}

func buildOrderEventRow(envelope Envelope) (OrderEventRow, error) {
	payload := map[string]any{}
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return OrderEventRow{}, fmt.Errorf("decode payload: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}

	payloadJSON := cbigquery.NullJSON{}
	if len(envelope.Payload) > 0 {
		payloadJSON.Valid = true
		payloadJSON.JSONVal = string(envelope.Payload)
	}

	return OrderEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt,
		OrderID:       firstString(payload, "order_id", "orderId"),
		UserID:        firstString(payload, "user_id", "userId"),
		AmountCents:   firstInt64(payload, "total_cents", "amount_cents"),
		Payload:       payloadJSON,
	}, nil
}

// firstString returns the first non-empty string under any of the keys. The
// expired payload uses camelCase keys, the rest snake_case.
func firstString(payload map[string]any, keys ...string) *string {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			continue
		}
		if str != "" {
			return &str
		}
	}
	return nil
}

func firstInt64(payload map[string]any, keys ...string) cbigquery.NullInt64 {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		// encoding/json decodes numbers into float64.
		if num, ok := raw.(float64); ok {
			return cbigquery.NullInt64{Int64: int64(num), Valid: true}
		}
	}
	return cbigquery.NullInt64{}
}
