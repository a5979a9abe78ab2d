package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/logger"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	opSendMessage   = "sendMessage"
	opSendDirect    = "sendDirectMessage"
	opFetchMessages = "fetchMessages"
	opDeleteMessage = "deleteMessage"
	opLockChannel   = "lockChannel"
	opUnlockChannel = "unlockChannel"
	opGrantRole     = "grantRole"
	opRevokeRole    = "revokeRole"
)

// Requester is the part of *nats.Conn the gateway uses.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// NATSGateway forwards platform calls to the chat adapter over NATS request/reply.
// Requests and replies are structpb.Struct values. A reply carries "ok" and, on failure, "error".
type NATSGateway struct {
	conn    Requester
	subject string
	timeout time.Duration
	log     *logger.Logger
}

func NewNATSGateway(conn Requester, subject string, timeout time.Duration, log *logger.Logger) *NATSGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSGateway{
		conn:    conn,
		subject: subject,
		timeout: timeout,
		log:     log.With("component", "platform_gateway"),
	}
}

func (g *NATSGateway) call(ctx context.Context, op string, fields map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to build platform request")
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal platform request")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.conn.RequestWithContext(ctx, g.subject+"."+op, data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCollaboratorError, fmt.Sprintf("platform %s failed", op))
	}

	var reply structpb.Struct
	if err := proto.Unmarshal(msg.Data, &reply); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal platform reply")
	}

	if ok := reply.GetFields()["ok"]; ok == nil || !ok.GetBoolValue() {
		reason := reply.GetFields()["error"].GetStringValue()
		g.log.Warn("Platform call rejected", "op", op, "reason", reason)
		return nil, apperrors.New(apperrors.CodeCollaboratorError, fmt.Sprintf("platform %s: %s", op, reason))
	}

	return &reply, nil
}

func messageFields(msg OutboundMessage) map[string]interface{} {
	fields := map[string]interface{}{
		"kind":    msg.Kind,
		"content": msg.Content,
	}
	if msg.Data != nil {
		fields["data"] = msg.Data
	}
	return fields
}

func (g *NATSGateway) SendMessage(ctx context.Context, channelID string, msg OutboundMessage) error {
	fields := messageFields(msg)
	fields["channelId"] = channelID
	_, err := g.call(ctx, opSendMessage, fields)
	return err
}

func (g *NATSGateway) SendDirectMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	fields := messageFields(msg)
	fields["userId"] = userID
	_, err := g.call(ctx, opSendDirect, fields)
	return err
}

func (g *NATSGateway) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	reply, err := g.call(ctx, opFetchMessages, map[string]interface{}{
		"channelId": channelID,
		"limit":     limit,
	})
	if err != nil {
		return nil, err
	}

	list := reply.GetFields()["messages"].GetListValue()
	out := make([]Message, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		f := v.GetStructValue().GetFields()
		m := Message{
			ID:       f["id"].GetStringValue(),
			AuthorID: f["authorId"].GetStringValue(),
			Kind:     f["kind"].GetStringValue(),
			FromBot:  f["fromBot"].GetBoolValue(),
			Pinned:   f["pinned"].GetBoolValue(),
		}
		if ts := f["createdAt"].GetStringValue(); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				m.CreatedAt = t
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (g *NATSGateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	_, err := g.call(ctx, opDeleteMessage, map[string]interface{}{
		"channelId": channelID,
		"messageId": messageID,
	})
	return err
}

func (g *NATSGateway) LockChannel(ctx context.Context, guildID, channelID string) error {
	_, err := g.call(ctx, opLockChannel, map[string]interface{}{
		"guildId":   guildID,
		"channelId": channelID,
	})
	return err
}

func (g *NATSGateway) UnlockChannel(ctx context.Context, guildID, channelID string) error {
	_, err := g.call(ctx, opUnlockChannel, map[string]interface{}{
		"guildId":   guildID,
		"channelId": channelID,
	})
	return err
}

func (g *NATSGateway) GrantRole(ctx context.Context, guildID, roleID, userID string) error {
	_, err := g.call(ctx, opGrantRole, map[string]interface{}{
		"guildId": guildID,
		"roleId":  roleID,
		"userId":  userID,
	})
	return err
}

func (g *NATSGateway) RevokeRole(ctx context.Context, guildID, roleID, userID string) error {
	_, err := g.call(ctx, opRevokeRole, map[string]interface{}{
		"guildId": guildID,
		"roleId":  roleID,
		"userId":  userID,
	})
	return err
}
