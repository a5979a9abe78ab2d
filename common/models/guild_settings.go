package models

import (
	"fmt"
	"time"
)

type GuildSettings struct {
	GuildID      string    `dynamodbav:"guild_id" json:"guild_id"`
	LogChannel   string    `dynamodbav:"log_channel" json:"log_channel"`
	BotAdminRole string    `dynamodbav:"bot_admin_role" json:"bot_admin_role"`
	CreatedAt    time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at" json:"updated_at"`

	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`
}

func GuildPK(guildID string) string {
	return fmt.Sprintf("GUILD#%s", guildID)
}

func GuildSettingsSK() string {
	return "SETTINGS"
}
