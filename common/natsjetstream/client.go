package natsjetstream

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/logger"
)

type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
	cfg  *Config
	log  *logger.Logger
}

func NewClient(cfg *Config, log *logger.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to connect to NATS")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to create JetStream context")
	}

	return &Client{
		conn: nc,
		js:   js,
		cfg:  cfg,
		log:  log,
	}, nil
}

// EnsureStream creates the stream or updates its subjects when it already exists.
func (c *Client) EnsureStream(ctx context.Context, sc StreamConfig) error {
	cfg := jetstream.StreamConfig{
		Name:     sc.Name,
		Subjects: sc.Subjects,
		MaxAge:   sc.MaxAge,
	}

	_, err := c.js.CreateStream(ctx, cfg)
	if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		_, err = c.js.UpdateStream(ctx, cfg)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to ensure stream "+sc.Name)
	}

	c.log.Info("JetStream stream ready", "stream", sc.Name, "subjects", sc.Subjects)
	return nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Drain()
	}

	return nil
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
