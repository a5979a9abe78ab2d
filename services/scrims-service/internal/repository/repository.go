package repository

import (
	"context"
	"time"

	"github.com/scrimx/scrims/common/models"
)

type ScrimsRepository interface {
	Create(ctx context.Context, scrims *models.Scrims) error
	GetByID(ctx context.Context, scrimsID string) (*models.Scrims, error)
	ListByGuild(ctx context.Context, guildID string) ([]*models.Scrims, error)
	ListAll(ctx context.Context) ([]*models.Scrims, error)

	// Update writes scrims only if the stored version still equals scrims.Version, then bumps it.
	// A mismatch returns a CodeConflict error and leaves the stored record untouched.
	Update(ctx context.Context, scrims *models.Scrims) error

	Delete(ctx context.Context, scrimsID string) error
	DeleteByGuild(ctx context.Context, guildID string) (int, error)
}

type ReminderRepository interface {
	Get(ctx context.Context, guildID, userID string) (*models.Reminder, error)

	// Create stores a reminder unless the user already has an un-notified one for the guild.
	Create(ctx context.Context, reminder *models.Reminder) error

	ListPending(ctx context.Context, guildID string) ([]*models.Reminder, error)
	ListPendingGuilds(ctx context.Context) ([]string, error)

	// MarkNotified flips notified from false to true. It returns false when another worker got there first.
	MarkNotified(ctx context.Context, guildID, userID string, at time.Time) (bool, error)
}

type SettingsRepository interface {
	Get(ctx context.Context, guildID string) (*models.GuildSettings, error)
	Upsert(ctx context.Context, settings *models.GuildSettings) error
}

// Store groups the record accessors the engine depends on.
type Store struct {
	Scrims    ScrimsRepository
	Reminders ReminderRepository
	Settings  SettingsRepository
}
