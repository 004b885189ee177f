package delivery

import (
	"fmt"
	"strings"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/ports"
)

// New builds the channel selected by delivery.channel.
func New(cfg config.DeliveryConfig) (ports.Channel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Channel)) {
	case "", "log":
		return LogChannel{}, nil
	case "http":
		return NewHTTPChannel(cfg.HTTP)
	case "amqp":
		return NewAMQPChannel(cfg.AMQP)
	case "nats":
		return NewNATSChannel(cfg.NATS)
	default:
		return nil, fmt.Errorf("unsupported delivery channel %q", cfg.Channel)
	}
}
