package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ctmsgb/booking-backend/internal/config"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Topics published after a booking or payment changes state. Consumers
// (notifications, reporting) subscribe outside this service.
const (
	TopicBookingReserved      = "booking.reserved"
	TopicBookingConfirmed     = "booking.confirmed"
	TopicBookingCancelled     = "booking.cancelled"
	TopicBookingExpired       = "booking.expired"
	TopicPaymentStatusChanged = "payment.status_changed"
)

// BookingEvent is the payload of the booking.* topics
type BookingEvent struct {
	BookingID     uuid.UUID `json:"booking_id"`
	Status        string    `json:"status"`
	CompanyID     int64     `json:"company_id"`
	VehicleID     int64     `json:"vehicle_id"`
	ArrivalDate   string    `json:"arrival_date"`
	ArrivalTime   string    `json:"arrival_time"`
	Seats         []int64   `json:"seats"`
	IsFullVehicle bool      `json:"is_full_vehicle"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentStatusChanged is the payload of payment.status_changed
type PaymentStatusChanged struct {
	BookingID  uuid.UUID `json:"booking_id"`
	PaymentID  uuid.UUID `json:"payment_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Bus publishes domain events through a watermill publisher
type Bus struct {
	publisher message.Publisher
	logger    *logrus.Logger
}

// NewBus builds the publisher selected by cfg.Driver
func NewBus(cfg config.EventsConfig, logger *logrus.Logger) (*Bus, error) {
	wmLogger := NewLogrusAdapter(logger)

	switch cfg.Driver {
	case "amqp":
		amqpConfig := amqp.NewDurableQueueConfig(cfg.AMQPURL)
		publisher, err := amqp.NewPublisher(amqpConfig, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
		}
		return NewBusWithPublisher(publisher, logger), nil
	default:
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		return NewBusWithPublisher(pubSub, logger), nil
	}
}

// NewBusWithPublisher wraps an existing watermill publisher
func NewBusWithPublisher(publisher message.Publisher, logger *logrus.Logger) *Bus {
	return &Bus{publisher: publisher, logger: logger}
}

// Publish encodes event as JSON and publishes it on topic
func (b *Bus) Publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("topic", topic)
	msg.Metadata.Set("content_type", "application/json")

	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}

	b.logger.WithFields(logrus.Fields{
		"topic":      topic,
		"message_id": msg.UUID,
	}).Debug("Event published")
	return nil
}

// Close releases the underlying publisher
func (b *Bus) Close() error {
	return b.publisher.Close()
}

// Discard drops every event. Used by tools that do not emit events.
type Discard struct{}

func (Discard) Publish(context.Context, string, interface{}) error { return nil }
