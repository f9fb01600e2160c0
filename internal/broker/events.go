package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"registration-service/internal/models"
	"registration-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing notification events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishRegistrationConfirmed publishes a RegistrationConfirmed event. The
// key groups messages per checkout so receipts for one group stay ordered.
func (ep *EventPublisher) PublishRegistrationConfirmed(ctx context.Context, event *models.RegistrationConfirmedEvent) error {
	key := event.GroupID
	if key == "" && len(event.Items) > 0 {
		key = fmt.Sprintf("registration-%d", event.Items[0].RegistrationID)
	}
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed notification events
type EventHandler struct {
	onRegistrationConfirmed func(context.Context, *models.RegistrationConfirmedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnRegistrationConfirmed registers a handler for RegistrationConfirmed events
func (eh *EventHandler) OnRegistrationConfirmed(handler func(context.Context, *models.RegistrationConfirmedEvent) error) {
	eh.onRegistrationConfirmed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeRegistrationConfirmed:
		if eh.onRegistrationConfirmed != nil {
			var event models.RegistrationConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RegistrationConfirmed event: %w", err)
			}
			return eh.onRegistrationConfirmed(ctx, &event)
		}

	default:
		util.GetLogger().Info("Unhandled event type",
			zap.String("event_type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
	}

	return nil
}
