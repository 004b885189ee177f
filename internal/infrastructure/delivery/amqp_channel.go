package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

// ErrPublishNacked is returned when the broker refuses a published message.
var ErrPublishNacked = errors.New("amqp broker nacked message")

const confirmTimeout = 10 * time.Second

// AMQPChannel hands messages to a durable queue consumed by the bot
// gateway. The connection is opened lazily in confirm mode and reopened
// after failures. A send only succeeds once the broker acks it.
type AMQPChannel struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ ports.Channel = (*AMQPChannel)(nil)

func NewAMQPChannel(cfg config.DeliveryAMQPConfig) (*AMQPChannel, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("delivery.amqp.url is required")
	}
	queue := strings.TrimSpace(cfg.Queue)
	if queue == "" {
		return nil, errors.New("delivery.amqp.queue is required")
	}
	return &AMQPChannel{url: url, queue: queue}, nil
}

func (c *AMQPChannel) Name() string {
	return "amqp"
}

type queuedMessage struct {
	UserID     string    `json:"user_id"`
	Message    string    `json:"message"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (c *AMQPChannel) PostPrivateMessage(ctx context.Context, userID string, text string) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	body, err := json.Marshal(queuedMessage{UserID: userID, Message: text, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return errs.Wrap(err, "encode queued message")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.channelLocked(ctx)
	if err != nil {
		return err
	}

	publish := func(ctx context.Context, msg amqp.Publishing) (confirmation, error) {
		deferred, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", c.queue, false, false, msg)
		if err != nil || deferred == nil {
			return nil, err
		}
		return deferred, nil
	}
	err = publishConfirmed(ctx, publish, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    userID + ":" + time.Now().UTC().Format(time.RFC3339Nano),
		Body:         body,
	})
	if err != nil {
		c.resetLocked()
		return err
	}
	return nil
}

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type publishFunc func(ctx context.Context, msg amqp.Publishing) (confirmation, error)

// publishConfirmed publishes msg and blocks until the broker acks or nacks
// it, or confirmTimeout passes.
func publishConfirmed(ctx context.Context, publish publishFunc, msg amqp.Publishing) error {
	confirm, err := publish(ctx, msg)
	if err != nil {
		return errs.Wrap(err, "publish private message")
	}
	if confirm == nil {
		return errors.New("publish private message: channel is not in confirm mode")
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return errs.Wrap(err, "await publish confirm")
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

func (c *AMQPChannel) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if c.ch != nil && !c.ch.IsClosed() && c.conn != nil && !c.conn.IsClosed() {
		return c.ch, nil
	}
	c.resetLocked()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, errs.Wrap(err, "dial amqp broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errs.Wrap(err, "open amqp channel")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errs.Wrap(err, "declare amqp queue")
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errs.Wrap(err, "enable publisher confirms")
	}

	logging.Info(logging.Component(ctx, "delivery.amqp"), "amqp channel opened", slog.String("queue", c.queue))
	c.conn = conn
	c.ch = ch
	return ch, nil
}

func (c *AMQPChannel) resetLocked() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *AMQPChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return nil
}
