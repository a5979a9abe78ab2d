package platform

import (
	"context"
	"time"
)

// Message kinds let the adapter pick a layout. The engine only decides what to send and when.
const (
	KindRegistrationOpen   = "registration_open"
	KindRegistrationClosed = "registration_closed"
	KindRegistrationFormat = "registration_format"
	KindDetails            = "details"
	KindSlotList           = "slot_list"
	KindAuditLog           = "audit_log"
	KindReminder           = "reminder"
	KindReset              = "reset"
)

type OutboundMessage struct {
	Kind    string
	Content string
	Data    map[string]interface{}
}

type Message struct {
	ID        string
	AuthorID  string
	Kind      string
	FromBot   bool
	Pinned    bool
	CreatedAt time.Time
}

type MessageSink interface {
	SendMessage(ctx context.Context, channelID string, msg OutboundMessage) error
	SendDirectMessage(ctx context.Context, userID string, msg OutboundMessage) error
}

type MessageFetcher interface {
	FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

type ChannelLock interface {
	LockChannel(ctx context.Context, guildID, channelID string) error
	UnlockChannel(ctx context.Context, guildID, channelID string) error
}

type RoleGrantor interface {
	GrantRole(ctx context.Context, guildID, roleID, userID string) error
	RevokeRole(ctx context.Context, guildID, roleID, userID string) error
}

// Platform is everything the engine needs from the chat platform.
type Platform interface {
	MessageSink
	MessageFetcher
	ChannelLock
	RoleGrantor
}
