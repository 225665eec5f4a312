package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// Publisher encodes payloads as JSON and publishes them with the caller's correlation id
type Publisher struct {
	pub message.Publisher
}

// NewPublisher wraps a watermill publisher
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// Publish sends payload to topic
func (p *Publisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", topic, err)
	}

	correlationID := CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	middleware.SetCorrelationID(correlationID, msg)
	msg.SetContext(ctx)

	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close closes the underlying publisher
func (p *Publisher) Close() error {
	return p.pub.Close()
}
