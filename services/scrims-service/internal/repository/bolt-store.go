package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/models"
	scrimserrors "github.com/scrimx/scrims/services/scrims-service/internal/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketScrims    = "scrims"
	bucketReminders = "reminders"
	bucketSettings  = "settings"
)

// BoltStore keeps every record as JSON in a single bbolt file. It implements the scrims, reminder
// and settings repositories.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketScrims, bucketReminders, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) AsStore() *Store {
	return &Store{
		Scrims:    &boltScrims{s},
		Reminders: &boltReminders{s},
		Settings:  &boltSettings{s},
	}
}

func dbError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, msg)
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "marshaling record")
	}
	return b.Put([]byte(key), data)
}

type boltScrims struct {
	s *BoltStore
}

func (r *boltScrims) Create(ctx context.Context, scrims *models.Scrims) error {
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketScrims))
		if b.Get([]byte(scrims.ScrimsID)) != nil {
			return apperrors.New(apperrors.CodeAlreadyExists, "scrims already exists")
		}

		now := time.Now().UTC()
		scrims.CreatedAt = now
		scrims.UpdatedAt = now
		scrims.Version = 1
		return putJSON(b, scrims.ScrimsID, scrims)
	})
	return dbError(err, "failed to create scrims")
}

func (r *boltScrims) GetByID(ctx context.Context, scrimsID string) (*models.Scrims, error) {
	var scrims *models.Scrims

	err := r.s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketScrims)).Get([]byte(scrimsID))
		if data == nil {
			return scrimserrors.ScrimsNotFoundError(scrimsID)
		}
		scrims = &models.Scrims{}
		return json.Unmarshal(data, scrims)
	})
	if err != nil {
		return nil, dbError(err, "failed to get scrims")
	}
	return scrims, nil
}

func (r *boltScrims) list(match func(*models.Scrims) bool) ([]*models.Scrims, error) {
	var out []*models.Scrims

	err := r.s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketScrims)).ForEach(func(k, v []byte) error {
			var scrims models.Scrims
			if err := json.Unmarshal(v, &scrims); err != nil {
				return err
			}
			if match(&scrims) {
				out = append(out, &scrims)
			}
			return nil
		})
	})
	if err != nil {
		return nil, dbError(err, "failed to list scrims")
	}
	return out, nil
}

func (r *boltScrims) ListByGuild(ctx context.Context, guildID string) ([]*models.Scrims, error) {
	return r.list(func(s *models.Scrims) bool { return s.GuildID == guildID })
}

func (r *boltScrims) ListAll(ctx context.Context) ([]*models.Scrims, error) {
	return r.list(func(*models.Scrims) bool { return true })
}

func (r *boltScrims) Update(ctx context.Context, scrims *models.Scrims) error {
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketScrims))
		data := b.Get([]byte(scrims.ScrimsID))
		if data == nil {
			return scrimserrors.VersionConflictError(scrims.ScrimsID)
		}

		var current models.Scrims
		if err := json.Unmarshal(data, &current); err != nil {
			return err
		}
		if current.Version != scrims.Version {
			return scrimserrors.VersionConflictError(scrims.ScrimsID)
		}

		next := *scrims
		next.Version = scrims.Version + 1
		next.UpdatedAt = time.Now().UTC()
		if err := putJSON(b, scrims.ScrimsID, &next); err != nil {
			return err
		}
		*scrims = next
		return nil
	})
	return dbError(err, "failed to update scrims")
}

func (r *boltScrims) Delete(ctx context.Context, scrimsID string) error {
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketScrims)).Delete([]byte(scrimsID))
	})
	return dbError(err, "failed to delete scrims")
}

func (r *boltScrims) DeleteByGuild(ctx context.Context, guildID string) (int, error) {
	deleted := 0

	err := r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketScrims))

		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var scrims models.Scrims
			if err := json.Unmarshal(v, &scrims); err != nil {
				return err
			}
			if scrims.GuildID == guildID {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range keys {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	})
	if err != nil {
		return 0, dbError(err, "failed to delete guild scrims")
	}
	return deleted, nil
}

type boltReminders struct {
	s *BoltStore
}

func reminderKeyString(guildID, userID string) string {
	return guildID + "/" + userID
}

func (r *boltReminders) Get(ctx context.Context, guildID, userID string) (*models.Reminder, error) {
	var reminder *models.Reminder

	err := r.s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketReminders)).Get([]byte(reminderKeyString(guildID, userID)))
		if data == nil {
			return nil
		}
		reminder = &models.Reminder{}
		return json.Unmarshal(data, reminder)
	})
	if err != nil {
		return nil, dbError(err, "failed to get reminder")
	}
	return reminder, nil
}

func (r *boltReminders) Create(ctx context.Context, reminder *models.Reminder) error {
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReminders))
		key := reminderKeyString(reminder.GuildID, reminder.UserID)

		if data := b.Get([]byte(key)); data != nil {
			var existing models.Reminder
			if err := json.Unmarshal(data, &existing); err != nil {
				return err
			}
			if !existing.Notified {
				return scrimserrors.ReminderExistsError()
			}
		}

		reminder.Notified = false
		reminder.NotifiedAt = nil
		return putJSON(b, key, reminder)
	})
	return dbError(err, "failed to create reminder")
}

func (r *boltReminders) pending(match func(*models.Reminder) bool) ([]*models.Reminder, error) {
	var out []*models.Reminder

	err := r.s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketReminders)).ForEach(func(k, v []byte) error {
			var reminder models.Reminder
			if err := json.Unmarshal(v, &reminder); err != nil {
				return err
			}
			if !reminder.Notified && match(&reminder) {
				out = append(out, &reminder)
			}
			return nil
		})
	})
	if err != nil {
		return nil, dbError(err, "failed to list reminders")
	}
	return out, nil
}

func (r *boltReminders) ListPending(ctx context.Context, guildID string) ([]*models.Reminder, error) {
	return r.pending(func(rem *models.Reminder) bool { return rem.GuildID == guildID })
}

func (r *boltReminders) ListPendingGuilds(ctx context.Context) ([]string, error) {
	all, err := r.pending(func(*models.Reminder) bool { return true })
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var guilds []string
	for _, rem := range all {
		if !seen[rem.GuildID] {
			seen[rem.GuildID] = true
			guilds = append(guilds, rem.GuildID)
		}
	}
	return guilds, nil
}

func (r *boltReminders) MarkNotified(ctx context.Context, guildID, userID string, at time.Time) (bool, error) {
	marked := false

	err := r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReminders))
		key := reminderKeyString(guildID, userID)
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}

		var reminder models.Reminder
		if err := json.Unmarshal(data, &reminder); err != nil {
			return err
		}
		if reminder.Notified {
			return nil
		}

		reminder.Notified = true
		reminder.NotifiedAt = &at
		marked = true
		return putJSON(b, key, &reminder)
	})
	if err != nil {
		return false, dbError(err, "failed to mark reminder notified")
	}
	return marked, nil
}

type boltSettings struct {
	s *BoltStore
}

func (r *boltSettings) Get(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	var settings *models.GuildSettings

	err := r.s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketSettings)).Get([]byte(guildID))
		if data == nil {
			return nil
		}
		settings = &models.GuildSettings{}
		return json.Unmarshal(data, settings)
	})
	if err != nil {
		return nil, dbError(err, "failed to get guild settings")
	}
	return settings, nil
}

func (r *boltSettings) Upsert(ctx context.Context, settings *models.GuildSettings) error {
	now := time.Now().UTC()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	err := r.s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket([]byte(bucketSettings)), settings.GuildID, settings)
	})
	return dbError(err, "failed to save guild settings")
}
