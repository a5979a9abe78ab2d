package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scrimx/scrims/common/logger"
	"github.com/scrimx/scrims/common/natsjetstream"
	"google.golang.org/protobuf/types/known/structpb"
)

type Event struct {
	Subject  string
	ScrimsID string
	GuildID  string
	Attrs    map[string]interface{}
}

type EventPublisher struct {
	publisher *natsjetstream.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

func NewEventPublisher(client *natsjetstream.Client, logger *logger.Logger) *EventPublisher {
	return &EventPublisher{
		publisher: natsjetstream.NewPublisher(client),
		logger:    logger.With("component", "event_publisher"),
		now:       time.Now,
	}
}

// Encode builds the wire payload: a structpb.Struct with the event envelope and its attributes.
func Encode(event Event, id string, at time.Time) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"eventId":   id,
		"subject":   event.Subject,
		"scrimsId":  event.ScrimsID,
		"guildId":   event.GuildID,
		"timestamp": at.Unix(),
	}
	if len(event.Attrs) > 0 {
		fields["attrs"] = event.Attrs
	}
	return structpb.NewStruct(fields)
}

func (p *EventPublisher) Publish(ctx context.Context, event Event) error {
	id := uuid.NewString()

	msg, err := Encode(event, id, p.now())
	if err != nil {
		p.logger.Error("Failed to encode event", "subject", event.Subject, "error", err)
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.publisher.PublishProto(ctx, event.Subject, id, msg); err != nil {
		p.logger.Error("Failed to publish event", "subject", event.Subject, "scrims_id", event.ScrimsID, "error", err)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published event", "subject", event.Subject, "scrims_id", event.ScrimsID)
	return nil
}
