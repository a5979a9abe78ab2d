package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	commonevents "github.com/scrimx/scrims/common/events"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/logger"
	"github.com/scrimx/scrims/common/models"
	"github.com/scrimx/scrims/common/natsjetstream"
	"github.com/scrimx/scrims/services/scrims-service/internal/service"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// IntakeService is the part of the scrims service driven by inbound platform events.
type IntakeService interface {
	SubmitRegistration(ctx context.Context, input service.RegistrationInput) (*service.RegistrationResult, *apperrors.AppError)
	ClaimSlot(ctx context.Context, input service.ClaimInput) (*service.SlotResult, *apperrors.AppError)
	CancelSlot(ctx context.Context, input service.CancelInput) (*service.SlotResult, *apperrors.AppError)
	SetReminder(ctx context.Context, guildID, userID, userTag string) (*models.Reminder, *apperrors.AppError)
}

type EventSubscriber struct {
	subscriber    *natsjetstream.Subscriber
	scrimsService IntakeService
	logger        *logger.Logger
	consumers     []jetstream.ConsumeContext
}

func NewEventSubscriber(
	natsClient *natsjetstream.Client,
	scrimsService IntakeService,
	logger *logger.Logger,
) *EventSubscriber {
	log := logger.With("component", "event_subscriber")
	return &EventSubscriber{
		subscriber:    natsjetstream.NewSubscriber(natsClient, log),
		scrimsService: scrimsService,
		logger:        log,
	}
}

func (s *EventSubscriber) Start(ctx context.Context) error {
	s.logger.Info("Starting event subscriptions")

	if err := s.subscribeToIntake(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to intake events: %w", err)
	}

	s.logger.Info("All event subscriptions started")
	return nil
}

func (s *EventSubscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.consumers = nil
}

func (s *EventSubscriber) subscribeToIntake(ctx context.Context) error {
	cfg := natsjetstream.ConsumerConfig{
		StreamName:    commonevents.ScrimsIntakeStream,
		ConsumerName:  "scrims-service-intake-consumer",
		Durable:       "scrims-service-intake",
		FilterSubject: commonevents.ScrimsIntakeWildcard,
		AckPolicy:     "explicit",
		MaxDeliver:    5,
	}

	s.logger.Info("Subscribing to intake events",
		"stream", cfg.StreamName,
		"consumer", cfg.ConsumerName,
	)

	cc, err := s.subscriber.Subscribe(ctx, cfg, s.handleIntake)
	if err != nil {
		return err
	}
	s.consumers = append(s.consumers, cc)
	return nil
}

func (s *EventSubscriber) handleIntake(ctx context.Context, msg jetstream.Msg) error {
	return s.route(ctx, msg.Subject(), msg.Data())
}

func (s *EventSubscriber) route(ctx context.Context, subject string, data []byte) error {
	s.logger.Debug("Received intake event", "subject", subject)

	switch subject {
	case commonevents.IntakeRegistration,
		commonevents.IntakeClaim,
		commonevents.IntakeCancel,
		commonevents.IntakeReminder:
	default:
		s.logger.Warn("Unknown intake subject", "subject", subject)
		return nil
	}

	var payload structpb.Struct
	if err := proto.Unmarshal(data, &payload); err != nil {
		s.logger.Error("Failed to unmarshal intake event", "subject", subject, "error", err)
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "unmarshal error")
	}
	fields := payload.AsMap()

	switch subject {
	case commonevents.IntakeRegistration:
		return s.handleRegistration(ctx, fields)
	case commonevents.IntakeClaim:
		return s.handleClaim(ctx, fields)
	case commonevents.IntakeCancel:
		return s.handleCancel(ctx, fields)
	default:
		return s.handleReminder(ctx, fields)
	}
}

func (s *EventSubscriber) handleRegistration(ctx context.Context, fields map[string]interface{}) error {
	input := service.RegistrationInput{
		ScrimsID:  stringField(fields, "scrimsId"),
		GuildID:   stringField(fields, "guildId"),
		ChannelID: stringField(fields, "channelId"),
		AuthorID:  stringField(fields, "authorId"),
		MessageID: stringField(fields, "messageId"),
		Content:   stringField(fields, "content"),
	}

	result, err := s.scrimsService.SubmitRegistration(ctx, input)
	if err != nil {
		s.logger.Info("Registration rejected", "author_id", input.AuthorID, "code", err.Code, "reason", err.Message)
		return err
	}

	s.logger.Info("Registration event processed",
		"scrims_id", result.Scrims.ScrimsID,
		"team", result.Team.TeamName,
		"auto_closed", result.AutoClosed,
	)
	return nil
}

func (s *EventSubscriber) handleClaim(ctx context.Context, fields map[string]interface{}) error {
	input := service.ClaimInput{
		ScrimsID: stringField(fields, "scrimsId"),
		TeamName: stringField(fields, "teamName"),
		UserID:   stringField(fields, "userId"),
	}

	result, err := s.scrimsService.ClaimSlot(ctx, input)
	if err != nil {
		s.logger.Info("Claim rejected", "user_id", input.UserID, "code", err.Code, "reason", err.Message)
		return err
	}

	s.logger.Info("Claim event processed", "scrims_id", input.ScrimsID, "slot", result.SlotNumber)
	return nil
}

func (s *EventSubscriber) handleCancel(ctx context.Context, fields map[string]interface{}) error {
	input := service.CancelInput{
		ScrimsID:   stringField(fields, "scrimsId"),
		SlotNumber: intField(fields, "slotNumber"),
		UserID:     stringField(fields, "userId"),
		Reason:     stringField(fields, "reason"),
		Admin:      boolField(fields, "admin"),
	}

	if _, err := s.scrimsService.CancelSlot(ctx, input); err != nil {
		s.logger.Info("Cancel rejected", "user_id", input.UserID, "slot", input.SlotNumber, "code", err.Code)
		return err
	}

	s.logger.Info("Cancel event processed", "scrims_id", input.ScrimsID, "slot", input.SlotNumber)
	return nil
}

func (s *EventSubscriber) handleReminder(ctx context.Context, fields map[string]interface{}) error {
	guildID := stringField(fields, "guildId")
	userID := stringField(fields, "userId")

	if _, err := s.scrimsService.SetReminder(ctx, guildID, userID, stringField(fields, "userTag")); err != nil {
		s.logger.Info("Reminder rejected", "guild_id", guildID, "user_id", userID, "code", err.Code)
		return err
	}
	return nil
}

func stringField(fields map[string]interface{}, key string) string {
	v, _ := fields[key].(string)
	return v
}

// intField reads a number; structpb carries every number as float64.
func intField(fields map[string]interface{}, key string) int {
	v, _ := fields[key].(float64)
	return int(v)
}

func boolField(fields map[string]interface{}, key string) bool {
	v, _ := fields[key].(bool)
	return v
}
