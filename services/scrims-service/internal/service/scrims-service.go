package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/logger"
	"github.com/scrimx/scrims/common/models"
	"github.com/scrimx/scrims/services/scrims-service/internal/cache"
	scrimserrors "github.com/scrimx/scrims/services/scrims-service/internal/errors"
	"github.com/scrimx/scrims/services/scrims-service/internal/events/publisher"
	"github.com/scrimx/scrims/services/scrims-service/internal/metrics"
	"github.com/scrimx/scrims/services/scrims-service/internal/platform"
	"github.com/scrimx/scrims/services/scrims-service/internal/repository"
	"github.com/scrimx/scrims/services/scrims-service/internal/slots"
	"golang.org/x/time/rate"
)

type EventPublisher interface {
	Publish(ctx context.Context, event publisher.Event) error
}

type AvailabilityCache interface {
	Get(ctx context.Context, guildID string) ([]cache.Availability, bool, error)
	Store(ctx context.Context, guildID string, entries []cache.Availability) error
	Invalidate(ctx context.Context, guildID string) error
}

// TimerRegistry is told when a scrims appears, changes its clock times or goes away.
type TimerRegistry interface {
	Register(scrims *models.Scrims)
	Unregister(scrimsID string)
}

type ResetPolicy struct {
	ClearReservations  bool
	ClearCancellations bool
}

type Options struct {
	Location           *time.Location
	Reset              ResetPolicy
	MaxConflictRetries int
	ReminderRate       rate.Limit
	Now                func() time.Time
}

type ScrimsService interface {
	CreateScrims(ctx context.Context, input CreateScrimsInput) (*models.Scrims, *apperrors.AppError)
	GetScrims(ctx context.Context, scrimsID string) (*models.Scrims, *apperrors.AppError)
	ListScrims(ctx context.Context) ([]*models.Scrims, *apperrors.AppError)
	DeleteScrims(ctx context.Context, scrimsID string) *apperrors.AppError
	DeleteAllScrims(ctx context.Context, guildID string) (int, *apperrors.AppError)
	ConfigureGuild(ctx context.Context, guildID, logChannel, adminRole string) (*models.GuildSettings, *apperrors.AppError)

	OpenRegistration(ctx context.Context, scrimsID, trigger string) (*TransitionResult, *apperrors.AppError)
	CloseRegistration(ctx context.Context, scrimsID string, reason CloseReason) (*TransitionResult, *apperrors.AppError)
	ResetScrims(ctx context.Context, scrimsID string) (*TransitionResult, *apperrors.AppError)
	DailyReset(ctx context.Context) (int, *apperrors.AppError)
	SendDailyDetails(ctx context.Context, scrimsID string) (bool, *apperrors.AppError)
	SubmitRegistration(ctx context.Context, input RegistrationInput) (*RegistrationResult, *apperrors.AppError)

	ClaimSlot(ctx context.Context, input ClaimInput) (*SlotResult, *apperrors.AppError)
	CancelSlot(ctx context.Context, input CancelInput) (*SlotResult, *apperrors.AppError)
	ReserveSlot(ctx context.Context, input ReserveInput) (*models.Reservation, *apperrors.AppError)
	CancelReservation(ctx context.Context, scrimsID string, slotNumber int) *apperrors.AppError
	PublishSlotList(ctx context.Context, scrimsID string) (slots.Layout, *apperrors.AppError)

	SweepExpiredReservations(ctx context.Context) (int, *apperrors.AppError)

	SetReminder(ctx context.Context, guildID, userID, userTag string) (*models.Reminder, *apperrors.AppError)
	GetAvailability(ctx context.Context, guildID string) ([]cache.Availability, *apperrors.AppError)
	DispatchReminders(ctx context.Context) (int, *apperrors.AppError)

	AttachTimers(timers TimerRegistry)
}

type scrimsService struct {
	store    *repository.Store
	platform platform.Platform
	events   EventPublisher
	cache    AvailabilityCache
	timers   TimerRegistry
	metrics  *metrics.Metrics
	logger   *logger.Logger
	limiter  *rate.Limiter
	validate *validator.Validate
	opts     Options
}

func NewScrimsService(
	store *repository.Store,
	plat platform.Platform,
	events EventPublisher,
	availability AvailabilityCache,
	m *metrics.Metrics,
	logger *logger.Logger,
	opts Options,
) ScrimsService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxConflictRetries <= 0 {
		opts.MaxConflictRetries = 5
	}
	if opts.ReminderRate <= 0 {
		opts.ReminderRate = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.Nop()
	}

	return &scrimsService{
		store:    store,
		platform: plat,
		events:   events,
		cache:    availability,
		metrics:  m,
		logger:   logger.With("component", "scrims_service"),
		limiter:  rate.NewLimiter(opts.ReminderRate, 1),
		validate: validator.New(),
		opts:     opts,
	}
}

func (s *scrimsService) AttachTimers(timers TimerRegistry) {
	s.timers = timers
}

func (s *scrimsService) now() time.Time {
	return s.opts.Now()
}

func toAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Wrap(err, apperrors.CodeInternalServer, err.Error())
}

func (s *scrimsService) validateInput(input interface{}) *apperrors.AppError {
	if err := s.validate.Struct(input); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid input")
	}
	return nil
}

// mutate applies fn to a fresh copy of the scrims and writes it back with a version check.
// fn returns false to skip the write. On a version conflict the scrims is re-read and fn runs again,
// so fn must only derive its outputs from the record it is given.
func (s *scrimsService) mutate(
	ctx context.Context,
	scrimsID string,
	fn func(sc *models.Scrims) (bool, error),
) (*models.Scrims, bool, *apperrors.AppError) {
	var lastErr error

	for attempt := 1; attempt <= s.opts.MaxConflictRetries; attempt++ {
		sc, err := s.store.Scrims.GetByID(ctx, scrimsID)
		if err != nil {
			return nil, false, toAppError(err)
		}

		write, err := fn(sc)
		if err != nil {
			return sc, false, toAppError(err)
		}
		if !write {
			return sc, false, nil
		}

		err = s.store.Scrims.Update(ctx, sc)
		if err == nil {
			return sc, true, nil
		}
		if !apperrors.IsRetryable(err) {
			return nil, false, toAppError(err)
		}

		lastErr = err
		s.metrics.ConflictRetries.Inc()
		s.logger.Debug("Scrims write conflict, retrying", "scrims_id", scrimsID, "attempt", attempt)

		if ctx.Err() != nil {
			return nil, false, apperrors.Wrap(ctx.Err(), apperrors.CodeServiceUnavailable, "operation cancelled")
		}
	}

	s.logger.Warn("Scrims write conflicts exhausted", "scrims_id", scrimsID, "attempts", s.opts.MaxConflictRetries)
	return nil, false, scrimserrors.ConflictExhaustedError(scrimsID, s.opts.MaxConflictRetries, lastErr)
}

func (s *scrimsService) recordOp(op string, err *apperrors.AppError) {
	code := "OK"
	if err != nil {
		code = err.Code
	}
	s.metrics.SlotOperations.WithLabelValues(op, code).Inc()
}

func (s *scrimsService) publish(ctx context.Context, subject string, sc *models.Scrims, attrs map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, publisher.Event{
		Subject:  subject,
		ScrimsID: sc.ScrimsID,
		GuildID:  sc.GuildID,
		Attrs:    attrs,
	}); err != nil {
		s.logger.Warn("Failed to publish event", "subject", subject, "scrims_id", sc.ScrimsID, "error", err)
	}
}

func (s *scrimsService) send(ctx context.Context, channelID string, msg platform.OutboundMessage) {
	if channelID == "" {
		return
	}
	if err := s.platform.SendMessage(ctx, channelID, msg); err != nil {
		s.logger.Warn("Failed to send message", "channel_id", channelID, "kind", msg.Kind, "error", err)
	}
}

// auditLog posts to the guild's configured log channel, if any.
func (s *scrimsService) auditLog(ctx context.Context, guildID, level, content string) {
	settings, err := s.store.Settings.Get(ctx, guildID)
	if err != nil {
		s.logger.Warn("Failed to load guild settings", "guild_id", guildID, "error", err)
		return
	}
	if settings == nil || settings.LogChannel == "" {
		return
	}
	s.send(ctx, settings.LogChannel, platform.OutboundMessage{
		Kind:    platform.KindAuditLog,
		Content: content,
		Data:    map[string]interface{}{"level": level},
	})
}

func (s *scrimsService) invalidate(ctx context.Context, guildID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, guildID); err != nil {
		s.logger.Warn("Failed to invalidate availability cache", "guild_id", guildID, "error", err)
	}
}

func (s *scrimsService) lock(ctx context.Context, sc *models.Scrims) {
	if err := s.platform.LockChannel(ctx, sc.GuildID, sc.RegistrationChannel); err != nil {
		s.logger.Warn("Failed to lock registration channel", "scrims_id", sc.ScrimsID, "error", err)
	}
}

func (s *scrimsService) unlock(ctx context.Context, sc *models.Scrims) {
	if err := s.platform.UnlockChannel(ctx, sc.GuildID, sc.RegistrationChannel); err != nil {
		s.logger.Warn("Failed to unlock registration channel", "scrims_id", sc.ScrimsID, "error", err)
	}
}

// clearChannel deletes recent non-pinned messages and returns how many went.
func (s *scrimsService) clearChannel(ctx context.Context, channelID string) int {
	msgs, err := s.platform.FetchRecentMessages(ctx, channelID, 100)
	if err != nil {
		s.logger.Warn("Failed to fetch channel messages", "channel_id", channelID, "error", err)
		return 0
	}

	deleted := 0
	for _, m := range msgs {
		if m.Pinned {
			continue
		}
		if err := s.platform.DeleteMessage(ctx, channelID, m.ID); err != nil {
			s.logger.Debug("Failed to delete message", "channel_id", channelID, "message_id", m.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

func stringList(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
