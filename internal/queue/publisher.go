package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mahirjain10/edge-image-resize/internal/types"
	"github.com/mahirjain10/edge-image-resize/internal/utils"
)

const (
	DefaultExchange   = "image_resize"
	RoutingStored     = "variant.stored"
	RoutingWarmed     = "variant.warmed"
	RoutingSkipped    = "variant.skipped"
	publishTimeout    = 5 * time.Second
	patternVariantKey = "variant"
)

// Channel is the publishing side of *amqp.Channel.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher emits variant events. It implements edge.VariantPublisher.
type Publisher struct {
	ch       Channel
	exchange string
	logger   *zap.SugaredLogger
}

func NewPublisher(ch Channel, exchange string, logger *zap.SugaredLogger) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Publisher{ch: ch, exchange: exchange, logger: logger}
}

func (p *Publisher) PublishVariant(ctx context.Context, data types.VariantData) error {
	return p.Publish(ctx, routingKeyFor(data.Status), types.VariantMessage{
		Pattern: patternVariantKey,
		Data:    data,
	})
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, message any) error {
	if p.ch == nil {
		return fmt.Errorf("publish channel is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	serializedMessage, err := utils.SerializeJSON(message)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         serializedMessage,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.logger.Debugw("Published event", "exchange", p.exchange, "routingKey", routingKey)
	return nil
}

func routingKeyFor(status string) string {
	switch status {
	case types.WARMED:
		return RoutingWarmed
	case types.SKIPPED:
		return RoutingSkipped
	default:
		return RoutingStored
	}
}
