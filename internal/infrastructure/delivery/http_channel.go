package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

// HTTPChannel posts private messages to a chat-bot HTTP API. A configured
// token is sent as a bearer credential on every request.
type HTTPChannel struct {
	endpoint string
	http     *http.Client
}

var _ ports.Channel = (*HTTPChannel)(nil)

func NewHTTPChannel(cfg config.DeliveryHTTPConfig) (*HTTPChannel, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("delivery.http.base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, errs.Wrap(err, "parse delivery base url")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		client.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   http.DefaultTransport,
		}
	}
	return &HTTPChannel{
		endpoint: parsed.JoinPath("send_private_msg").String(),
		http:     client,
	}, nil
}

func (c *HTTPChannel) Name() string {
	return "http"
}

type privateMessageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type privateMessageResponse struct {
	Status  string `json:"status"`
	RetCode int    `json:"retcode"`
	Message string `json:"message"`
}

func (c *HTTPChannel) PostPrivateMessage(ctx context.Context, userID string, text string) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	body, err := json.Marshal(privateMessageRequest{UserID: userID, Message: text})
	if err != nil {
		return errs.Wrap(err, "encode private message")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(err, "build private message request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(err, "post private message")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errs.Wrap(err, "read private message response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send_private_msg returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var decoded privateMessageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	if decoded.RetCode != 0 || strings.EqualFold(decoded.Status, "failed") {
		return fmt.Errorf("send_private_msg rejected: retcode=%d %s", decoded.RetCode, decoded.Message)
	}
	return nil
}
