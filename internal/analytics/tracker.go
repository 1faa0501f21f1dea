package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Tracker reports order events to the analytics pipeline. Implementations must
// be safe for concurrent use.
type Tracker interface {
	// TrackOrder reports a newly created order. Failures must not affect the
	// caller's success path.
	TrackOrder(ctx context.Context, shop, orderID string, amount int64)
}

// OrderEvent is the message published for each tracked order.
type OrderEvent struct {
	Shop       string    `json:"shop"`
	OrderID    string    `json:"orderId"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PubSubTracker publishes order events to a Pub/Sub topic, fire-and-forget.
type PubSubTracker struct {
	topic   *pubsub.Topic
	logger  *zap.Logger
	clock   func() time.Time
	marshal func(any) ([]byte, error)
}

// NewPubSubTracker constructs a Pub/Sub backed order tracker.
func NewPubSubTracker(topic *pubsub.Topic, logger *zap.Logger) (*PubSubTracker, error) {
	if topic == nil {
		return nil, errors.New("analytics tracker: topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubTracker{
		topic:   topic,
		logger:  logger,
		clock:   time.Now,
		marshal: json.Marshal,
	}, nil
}

// TrackOrder publishes the order event without waiting for the publish result.
// Publish failures are logged and dropped; analytics never blocks or fails the
// order path.
func (t *PubSubTracker) TrackOrder(ctx context.Context, shop, orderID string, amount int64) {
	if t == nil || t.topic == nil {
		return
	}

	event := OrderEvent{
		Shop:       strings.TrimSpace(shop),
		OrderID:    strings.TrimSpace(orderID),
		Amount:     amount,
		OccurredAt: t.clock().UTC(),
	}

	data, err := t.marshal(event)
	if err != nil {
		t.logger.Warn("analytics marshal failed", zap.String("orderId", event.OrderID), zap.Error(err))
		return
	}

	attrs := map[string]string{"event": "order.created"}
	if event.Shop != "" {
		attrs["shop"] = event.Shop
	}

	result := t.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	logger := t.logger
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			logger.Warn("analytics publish failed",
				zap.String("shop", event.Shop),
				zap.String("orderId", event.OrderID),
				zap.Error(fmt.Errorf("publish order event: %w", err)),
			)
		}
	}()
}

// NopTracker discards all events. Used when analytics is not configured.
type NopTracker struct{}

// TrackOrder implements Tracker.
func (NopTracker) TrackOrder(context.Context, string, string, int64) {}
