package service

import (
	"context"
	"fmt"
	"sort"

	commonevents "github.com/scrimx/scrims/common/events"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/models"
	"github.com/scrimx/scrims/services/scrims-service/internal/cache"
	scrimserrors "github.com/scrimx/scrims/services/scrims-service/internal/errors"
	"github.com/scrimx/scrims/services/scrims-service/internal/events/publisher"
	"github.com/scrimx/scrims/services/scrims-service/internal/platform"
)

func (s *scrimsService) SetReminder(ctx context.Context, guildID, userID, userTag string) (*models.Reminder, *apperrors.AppError) {
	if guildID == "" || userID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "guild id and user id are required")
	}

	existing, err := s.store.Reminders.Get(ctx, guildID, userID)
	if err != nil {
		return nil, toAppError(err)
	}
	if existing != nil && !existing.Notified {
		return nil, scrimserrors.ReminderExistsError()
	}

	reminder := &models.Reminder{
		GuildID:   guildID,
		UserID:    userID,
		UserTag:   userTag,
		CreatedAt: s.now(),
	}
	if err := s.store.Reminders.Create(ctx, reminder); err != nil {
		return nil, toAppError(err)
	}

	if err := s.platform.SendDirectMessage(ctx, userID, platform.OutboundMessage{
		Kind:    platform.KindReminder,
		Content: "You will be notified once when a scrims slot becomes available.",
		Data:    map[string]interface{}{"guildId": guildID, "confirmation": true},
	}); err != nil {
		s.logger.Debug("Failed to confirm reminder", "guild_id", guildID, "user_id", userID, "error", err)
	}

	s.logger.Info("Reminder set", "guild_id", guildID, "user_id", userID)
	return reminder, nil
}

// GetAvailability lists the guild's open or closed scrims that still have room, most available first.
func (s *scrimsService) GetAvailability(ctx context.Context, guildID string) ([]cache.Availability, *apperrors.AppError) {
	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, guildID)
		if err != nil {
			s.logger.Warn("Availability cache read failed", "guild_id", guildID, "error", err)
		} else if hit {
			return cached, nil
		}
	}

	entries, appErr := s.computeAvailability(ctx, guildID)
	if appErr != nil {
		return nil, appErr
	}

	if s.cache != nil {
		if err := s.cache.Store(ctx, guildID, entries); err != nil {
			s.logger.Warn("Availability cache write failed", "guild_id", guildID, "error", err)
		}
	}
	return entries, nil
}

func (s *scrimsService) computeAvailability(ctx context.Context, guildID string) ([]cache.Availability, *apperrors.AppError) {
	all, err := s.store.Scrims.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, toAppError(err)
	}

	entries := make([]cache.Availability, 0, len(all))
	for _, sc := range all {
		if sc.Status != models.StatusOpen && sc.Status != models.StatusClosed {
			continue
		}
		available := sc.AvailableSlots()
		if available <= 0 {
			continue
		}
		entries = append(entries, cache.Availability{
			ScrimsID:  sc.ScrimsID,
			Name:      sc.Name,
			Status:    string(sc.Status),
			Available: available,
			Total:     sc.TotalSlots,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Available != entries[j].Available {
			return entries[i].Available > entries[j].Available
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// DispatchReminders checks every guild with pending reminders and notifies them when capacity exists.
func (s *scrimsService) DispatchReminders(ctx context.Context) (int, *apperrors.AppError) {
	guilds, err := s.store.Reminders.ListPendingGuilds(ctx)
	if err != nil {
		return 0, toAppError(err)
	}

	total := 0
	for _, guildID := range guilds {
		n, appErr := s.dispatchGuild(ctx, guildID)
		if appErr != nil {
			s.logger.Error("Reminder dispatch failed", "guild_id", guildID, "error", appErr)
			continue
		}
		total += n
	}
	return total, nil
}

// notifyCapacity runs a dispatch for one guild right after a slot was freed.
func (s *scrimsService) notifyCapacity(ctx context.Context, guildID string) {
	if _, err := s.dispatchGuild(ctx, guildID); err != nil {
		s.logger.Warn("Reminder dispatch after cancellation failed", "guild_id", guildID, "error", err)
	}
}

// dispatchGuild delivers each pending reminder at most once. The reminder is marked before the message
// goes out, so a failed send is not retried.
func (s *scrimsService) dispatchGuild(ctx context.Context, guildID string) (int, *apperrors.AppError) {
	available, appErr := s.computeAvailability(ctx, guildID)
	if appErr != nil {
		return 0, appErr
	}
	if len(available) == 0 {
		return 0, nil
	}

	pending, err := s.store.Reminders.ListPending(ctx, guildID)
	if err != nil {
		return 0, toAppError(err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	listing := make([]interface{}, 0, len(available))
	for _, a := range available {
		listing = append(listing, map[string]interface{}{
			"scrimsId":  a.ScrimsID,
			"name":      a.Name,
			"available": a.Available,
			"total":     a.Total,
		})
	}

	delivered := 0
	for _, r := range pending {
		if err := s.limiter.Wait(ctx); err != nil {
			return delivered, apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "reminder dispatch interrupted")
		}

		won, err := s.store.Reminders.MarkNotified(ctx, guildID, r.UserID, s.now())
		if err != nil {
			s.logger.Warn("Failed to mark reminder", "guild_id", guildID, "user_id", r.UserID, "error", err)
			s.metrics.RemindersSent.WithLabelValues("error").Inc()
			continue
		}
		if !won {
			s.metrics.RemindersSent.WithLabelValues("skipped").Inc()
			continue
		}

		err = s.platform.SendDirectMessage(ctx, r.UserID, platform.OutboundMessage{
			Kind:    platform.KindReminder,
			Content: fmt.Sprintf("Scrims slots are available: %s has %d open", available[0].Name, available[0].Available),
			Data:    map[string]interface{}{"guildId": guildID, "scrims": listing},
		})
		if err != nil {
			s.logger.Warn("Failed to deliver reminder", "guild_id", guildID, "user_id", r.UserID, "error", err)
			s.metrics.RemindersSent.WithLabelValues("failed").Inc()
			continue
		}
		s.metrics.RemindersSent.WithLabelValues("sent").Inc()
		delivered++
	}

	s.logger.Info("Reminders dispatched", "guild_id", guildID, "pending", len(pending), "delivered", delivered)
	if s.events != nil {
		if err := s.events.Publish(ctx, publisher.Event{
			Subject: commonevents.RemindersDispatched,
			GuildID: guildID,
			Attrs:   map[string]interface{}{"pending": len(pending), "delivered": delivered},
		}); err != nil {
			s.logger.Warn("Failed to publish event", "subject", commonevents.RemindersDispatched, "guild_id", guildID, "error", err)
		}
	}
	return delivered, nil
}
