// Package events carries order lifecycle notifications to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	OrderPlaced        = "OrderPlaced"
	OrderStatusChanged = "OrderStatusChanged"
	OrderCancelled     = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload, picking up the correlation id carried by ctx.
func NewEnvelope(ctx context.Context, eventType, producer string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: CorrelationID(ctx),
		Payload:       raw,
	}, nil
}

// Decode unpacks the payload of env into T.
func Decode[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

//go:generate mockgen -destination=../order/publisher_mock_test.go -package=order github.com/MikeMC777/chili-ordenes/internal/events Publisher

// Publisher hands an envelope off for delivery. key selects the partition.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, Envelope) error { return nil }

type correlationKey struct{}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
