package natsjetstream

import (
	"context"

	"github.com/nats-io/nats.go"
	apperrors "github.com/scrimx/scrims/common/errors"
	"google.golang.org/protobuf/proto"
)

type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishProto(ctx context.Context, subject, msgID string, msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal proto message")
	}

	return p.Publish(ctx, subject, msgID, data)
}

// Publish sends data on a stream subject. A non-empty msgID enables JetStream deduplication.
func (p *Publisher) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if msgID != "" {
		msg.Header.Set(nats.MsgIdHdr, msgID)
	}

	if _, err := p.client.js.PublishMsg(ctx, msg); err != nil {
		return apperrors.Wrap(err, apperrors.CodeEventPublishError, "failed to publish message")
	}
	return nil
}
