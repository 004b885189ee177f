package delivery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"
	amqp "github.com/rabbitmq/amqp091-go"

	"seatwatch/internal/bootstrap/config"
)

func TestHTTPChannelPostsPrivateMessage(t *testing.T) {
	var got privateMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/bot/send_private_msg" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0}`))
	}))
	defer server.Close()

	channel, err := NewHTTPChannel(config.DeliveryHTTPConfig{BaseURL: server.URL + "/bot", Token: "secret"})
	if err != nil {
		t.Fatalf("NewHTTPChannel() error = %v", err)
	}
	if err := channel.PostPrivateMessage(context.Background(), "10001", "hello"); err != nil {
		t.Fatalf("PostPrivateMessage() error = %v", err)
	}
	if got.UserID != "10001" || got.Message != "hello" {
		t.Fatalf("request body = %+v", got)
	}
}

func TestHTTPChannelWithoutTokenSendsNoCredential(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0}`))
	}))
	defer server.Close()

	channel, err := NewHTTPChannel(config.DeliveryHTTPConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPChannel() error = %v", err)
	}
	if err := channel.PostPrivateMessage(context.Background(), "10001", "hello"); err != nil {
		t.Fatalf("PostPrivateMessage() error = %v", err)
	}
	if auth != "" {
		t.Fatalf("authorization = %q, want none", auth)
	}
}

func TestHTTPChannelFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "down", http.StatusServiceUnavailable)
			},
			want: "status 503",
		},
		{
			name: "retcode",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"status":"failed","retcode":100,"message":"user not found"}`))
			},
			want: "user not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			channel, err := NewHTTPChannel(config.DeliveryHTTPConfig{BaseURL: server.URL})
			if err != nil {
				t.Fatalf("NewHTTPChannel() error = %v", err)
			}
			err = channel.PostPrivateMessage(context.Background(), "u", "x")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("PostPrivateMessage() error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestNewSelectsChannel(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DeliveryConfig
		want    string
		wantErr bool
	}{
		{name: "default", cfg: config.DeliveryConfig{}, want: "log"},
		{name: "http", cfg: config.DeliveryConfig{Channel: "HTTP", HTTP: config.DeliveryHTTPConfig{BaseURL: "http://bot.local"}}, want: "http"},
		{name: "http without url", cfg: config.DeliveryConfig{Channel: "http"}, wantErr: true},
		{name: "amqp", cfg: config.DeliveryConfig{Channel: "amqp", AMQP: config.DeliveryAMQPConfig{URL: "amqp://localhost", Queue: "q"}}, want: "amqp"},
		{name: "amqp without queue", cfg: config.DeliveryConfig{Channel: "amqp", AMQP: config.DeliveryAMQPConfig{URL: "amqp://localhost"}}, wantErr: true},
		{name: "nats", cfg: config.DeliveryConfig{Channel: "nats", NATS: config.DeliveryNATSConfig{URL: "nats://localhost:4222", Subject: "s", Stream: "S"}}, want: "nats"},
		{name: "nats without stream", cfg: config.DeliveryConfig{Channel: "nats", NATS: config.DeliveryNATSConfig{URL: "nats://localhost:4222", Subject: "s"}}, wantErr: true},
		{name: "unknown", cfg: config.DeliveryConfig{Channel: "pigeon"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			channel, err := New(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("New() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if channel.Name() != tc.want {
				t.Fatalf("New().Name() = %q, want %q", channel.Name(), tc.want)
			}
		})
	}
}

func TestLogChannelRequiresContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test.
	if err := (LogChannel{}).PostPrivateMessage(nil, "u", "x"); err == nil {
		t.Fatalf("PostPrivateMessage(nil) expected error")
	}
	if err := (LogChannel{}).PostPrivateMessage(context.Background(), "u", "x"); err != nil {
		t.Fatalf("PostPrivateMessage() error = %v", err)
	}
}

type fakeConfirmation struct {
	acked bool
	block bool
}

func (f fakeConfirmation) WaitContext(ctx context.Context) (bool, error) {
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.acked, nil
}

func TestPublishConfirmed(t *testing.T) {
	errBroker := errors.New("channel closed")
	tests := []struct {
		name    string
		publish publishFunc
		cancel  bool
		wantErr error
		anyErr  bool
	}{
		{
			name: "acked",
			publish: func(context.Context, amqp.Publishing) (confirmation, error) {
				return fakeConfirmation{acked: true}, nil
			},
		},
		{
			name: "nacked",
			publish: func(context.Context, amqp.Publishing) (confirmation, error) {
				return fakeConfirmation{acked: false}, nil
			},
			wantErr: ErrPublishNacked,
		},
		{
			name: "publish error",
			publish: func(context.Context, amqp.Publishing) (confirmation, error) {
				return nil, errBroker
			},
			wantErr: errBroker,
		},
		{
			name: "no confirm mode",
			publish: func(context.Context, amqp.Publishing) (confirmation, error) {
				return nil, nil
			},
			anyErr: true,
		},
		{
			name: "caller gives up",
			publish: func(context.Context, amqp.Publishing) (confirmation, error) {
				return fakeConfirmation{block: true}, nil
			},
			cancel:  true,
			wantErr: context.Canceled,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			if tc.cancel {
				cancel()
			}
			defer cancel()

			err := publishConfirmed(ctx, tc.publish, amqp.Publishing{Body: []byte("{}")})
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("publishConfirmed() error = %v, want %v", err, tc.wantErr)
				}
			case tc.anyErr:
				if err == nil {
					t.Fatalf("publishConfirmed() error = nil")
				}
			default:
				if err != nil {
					t.Fatalf("publishConfirmed() error = %v", err)
				}
			}
		})
	}
}

type fakeStream struct {
	ack      *jetstream.PubAck
	err      error
	subjects []string
	bodies   [][]byte
}

func (f *fakeStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, data)
	return f.ack, f.err
}

func TestNATSChannelRequiresStreamAck(t *testing.T) {
	tests := []struct {
		name    string
		stream  *fakeStream
		wantErr bool
	}{
		{name: "acked", stream: &fakeStream{ack: &jetstream.PubAck{Stream: "SEATWATCH", Sequence: 7}}},
		{name: "publish error", stream: &fakeStream{err: errors.New("nats: timeout")}, wantErr: true},
		{name: "other stream", stream: &fakeStream{ack: &jetstream.PubAck{Stream: "OTHER", Sequence: 1}}, wantErr: true},
		{name: "no ack", stream: &fakeStream{}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			channel, err := NewNATSChannel(config.DeliveryNATSConfig{URL: "nats://localhost:4222", Subject: "seatwatch.private", Stream: "SEATWATCH"})
			if err != nil {
				t.Fatalf("NewNATSChannel() error = %v", err)
			}
			channel.js = tc.stream

			err = channel.PostPrivateMessage(context.Background(), "10001", "hello")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("PostPrivateMessage() error = nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("PostPrivateMessage() error = %v", err)
			}
			if len(tc.stream.subjects) != 1 || tc.stream.subjects[0] != "seatwatch.private" {
				t.Fatalf("published subjects = %v", tc.stream.subjects)
			}
			var msg queuedMessage
			if err := json.Unmarshal(tc.stream.bodies[0], &msg); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if msg.UserID != "10001" || msg.Message != "hello" {
				t.Fatalf("published message = %+v", msg)
			}
		})
	}
}

// Runs against a live JetStream server when SW_TEST_NATS_URL is set.
func TestNATSChannelLive(t *testing.T) {
	url := os.Getenv("SW_TEST_NATS_URL")
	if url == "" {
		t.Skip("SW_TEST_NATS_URL not set")
	}

	channel, err := NewNATSChannel(config.DeliveryNATSConfig{URL: url, Subject: "seatwatch.test.private", Stream: "SEATWATCH_TEST"})
	if err != nil {
		t.Fatalf("NewNATSChannel() error = %v", err)
	}
	t.Cleanup(func() { _ = channel.Close() })

	if err := channel.PostPrivateMessage(context.Background(), "10001", "hello"); err != nil {
		t.Fatalf("PostPrivateMessage() error = %v", err)
	}
}
