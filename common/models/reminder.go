package models

import (
	"fmt"
	"time"
)

type Reminder struct {
	GuildID    string     `dynamodbav:"guild_id" json:"guild_id"`
	UserID     string     `dynamodbav:"user_id" json:"user_id"`
	UserTag    string     `dynamodbav:"user_tag" json:"user_tag"`
	CreatedAt  time.Time  `dynamodbav:"created_at" json:"created_at"`
	Notified   bool       `dynamodbav:"notified" json:"notified"`
	NotifiedAt *time.Time `dynamodbav:"notified_at" json:"notified_at,omitempty"`

	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`
}

func ReminderSK(userID string) string {
	return fmt.Sprintf("REMINDER#%s", userID)
}

func ReminderSKPrefix() string {
	return "REMINDER#"
}
