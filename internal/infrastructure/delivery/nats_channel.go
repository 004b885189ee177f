package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSChannel publishes messages to a JetStream subject read by the bot
// gateway. A send succeeds once the stream acknowledges it.
type NATSChannel struct {
	url     string
	subject string
	stream  string

	mu   sync.Mutex
	conn *nats.Conn
	js   streamPublisher
}

var _ ports.Channel = (*NATSChannel)(nil)

func NewNATSChannel(cfg config.DeliveryNATSConfig) (*NATSChannel, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("delivery.nats.url is required")
	}
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		return nil, errors.New("delivery.nats.subject is required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("delivery.nats.stream is required")
	}
	return &NATSChannel{url: url, subject: subject, stream: stream}, nil
}

func (c *NATSChannel) Name() string {
	return "nats"
}

func (c *NATSChannel) PostPrivateMessage(ctx context.Context, userID string, text string) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	body, err := json.Marshal(queuedMessage{UserID: userID, Message: text, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return errs.Wrap(err, "encode queued message")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	js, err := c.publisherLocked(ctx)
	if err != nil {
		return err
	}
	ack, err := js.Publish(ctx, c.subject, body,
		jetstream.WithMsgID(uuid.NewString()),
		jetstream.WithExpectStream(c.stream),
	)
	if err != nil {
		return errs.Wrap(err, "publish private message")
	}
	if ack == nil || ack.Stream != c.stream {
		return fmt.Errorf("publish private message: unexpected ack %+v", ack)
	}
	return nil
}

func (c *NATSChannel) publisherLocked(ctx context.Context) (streamPublisher, error) {
	if c.js != nil && (c.conn == nil || !c.conn.IsClosed()) {
		return c.js, nil
	}
	c.resetLocked()

	conn, err := nats.Connect(c.url, nats.Name("seatwatch"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, errs.Connectivity(errs.Wrap(err, "connect nats server"))
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errs.Wrap(err, "open jetstream")
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.stream,
		Subjects: []string{c.subject},
		Storage:  jetstream.FileStorage,
	}); err != nil {
		conn.Close()
		return nil, errs.Wrap(err, "declare jetstream stream")
	}

	logging.Info(logging.Component(ctx, "delivery.nats"), "nats channel opened",
		slog.String("stream", c.stream),
		slog.String("subject", c.subject),
	)
	c.conn = conn
	c.js = js
	return js, nil
}

func (c *NATSChannel) resetLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.js = nil
}

func (c *NATSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return nil
}
