package platform

import (
	"context"

	"github.com/scrimx/scrims/common/logger"
)

// LogPlatform records every call in the log and reports success. It stands in for the gateway when
// NATS is disabled, e.g. in local development.
type LogPlatform struct {
	log *logger.Logger
}

func NewLogPlatform(log *logger.Logger) *LogPlatform {
	return &LogPlatform{log: log.With("component", "log_platform")}
}

func (p *LogPlatform) SendMessage(ctx context.Context, channelID string, msg OutboundMessage) error {
	p.log.Info("send message", "channel_id", channelID, "kind", msg.Kind, "content", msg.Content)
	return nil
}

func (p *LogPlatform) SendDirectMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	p.log.Info("send direct message", "user_id", userID, "kind", msg.Kind, "content", msg.Content)
	return nil
}

func (p *LogPlatform) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	return nil, nil
}

func (p *LogPlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return nil
}

func (p *LogPlatform) LockChannel(ctx context.Context, guildID, channelID string) error {
	p.log.Info("lock channel", "guild_id", guildID, "channel_id", channelID)
	return nil
}

func (p *LogPlatform) UnlockChannel(ctx context.Context, guildID, channelID string) error {
	p.log.Info("unlock channel", "guild_id", guildID, "channel_id", channelID)
	return nil
}

func (p *LogPlatform) GrantRole(ctx context.Context, guildID, roleID, userID string) error {
	p.log.Info("grant role", "guild_id", guildID, "role_id", roleID, "user_id", userID)
	return nil
}

func (p *LogPlatform) RevokeRole(ctx context.Context, guildID, roleID, userID string) error {
	p.log.Info("revoke role", "guild_id", guildID, "role_id", roleID, "user_id", userID)
	return nil
}
