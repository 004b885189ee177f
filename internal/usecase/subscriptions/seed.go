package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/subscription"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

type seedTarget struct {
	Kind          string   `toml:"kind" yaml:"kind"`
	ID            string   `toml:"id" yaml:"id"`
	Name          string   `toml:"name" yaml:"name"`
	City          string   `toml:"city" yaml:"city"`
	Level         *int     `toml:"level" yaml:"level"`
	IncludeEvents []string `toml:"include_events" yaml:"include_events"`
	ExcludeEvents []string `toml:"exclude_events" yaml:"exclude_events"`
}

type seedUser struct {
	UserID         string       `toml:"user_id" yaml:"user_id"`
	Level          int          `toml:"level" yaml:"level"`
	Muted          bool         `toml:"muted" yaml:"muted"`
	SilentHours    string       `toml:"silent_hours" yaml:"silent_hours"`
	AllowBroadcast bool         `toml:"allow_broadcast" yaml:"allow_broadcast"`
	Targets        []seedTarget `toml:"targets" yaml:"targets"`
}

type seedFile struct {
	Users []seedUser `toml:"users" yaml:"users"`
}

// LoadSeedFile reads a subscriber seed file. Files ending in .yaml or .yml
// are YAML with the same keys; anything else is TOML:
//
//	[[users]]
//	user_id = "10001"
//	level = 2
//	silent_hours = "23:00-08:00"
//
//	[[users.targets]]
//	kind = "actor"
//	name = "郑云龙"
//	city = "上海"
func LoadSeedFile(path string) ([]subscription.Subscription, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("seed file is required")
	}
	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, errs.Wrap(err, "read seed file")
	}
	switch strings.ToLower(filepath.Ext(trimmed)) {
	case ".yaml", ".yml":
		return ParseSeedYAML(raw)
	default:
		return ParseSeed(raw)
	}
}

// ParseSeed decodes a TOML seed.
func ParseSeed(raw []byte) ([]subscription.Subscription, error) {
	var file seedFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrap(err, "decode seed toml")
	}
	return file.subscriptions()
}

func ParseSeedYAML(raw []byte) ([]subscription.Subscription, error) {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrap(err, "decode seed yaml")
	}
	return file.subscriptions()
}

func (file seedFile) subscriptions() ([]subscription.Subscription, error) {
	seen := make(map[string]struct{}, len(file.Users))
	out := make([]subscription.Subscription, 0, len(file.Users))
	for i, user := range file.Users {
		sub, err := user.toSubscription()
		if err != nil {
			return nil, errs.Wrapf(err, "users[%d]", i)
		}
		if _, dup := seen[sub.UserID]; dup {
			return nil, fmt.Errorf("users[%d]: duplicate user_id %q", i, sub.UserID)
		}
		seen[sub.UserID] = struct{}{}
		out = append(out, sub)
	}
	return out, nil
}

func (u seedUser) toSubscription() (subscription.Subscription, error) {
	sub := subscription.Subscription{
		UserID: strings.TrimSpace(u.UserID),
		Option: subscription.Option{
			NotificationLevel: u.Level,
			Muted:             u.Muted,
			SilentHours:       strings.TrimSpace(u.SilentHours),
			AllowBroadcast:    u.AllowBroadcast,
		},
	}
	for j, target := range u.Targets {
		kind, err := subscription.ParseTargetKind(target.Kind)
		if err != nil {
			return subscription.Subscription{}, errs.Wrapf(err, "targets[%d]", j)
		}
		sub.Targets = append(sub.Targets, subscription.Target{
			Kind:          kind,
			TargetID:      strings.TrimSpace(target.ID),
			Name:          strings.TrimSpace(target.Name),
			CityFilter:    strings.TrimSpace(target.City),
			Level:         target.Level,
			IncludeEvents: target.IncludeEvents,
			ExcludeEvents: target.ExcludeEvents,
		})
	}
	if err := sub.Validate(); err != nil {
		return subscription.Subscription{}, err
	}
	return sub, nil
}

type Importer struct {
	repo ports.SubscriptionRepository
	uow  ports.UnitOfWork
}

func NewImporter(repo ports.SubscriptionRepository, uow ports.UnitOfWork) *Importer {
	return &Importer{repo: repo, uow: uow}
}

// Import replaces every listed subscriber in one transaction. Subscribers
// not in the list are left untouched.
func (i *Importer) Import(ctx context.Context, subs []subscription.Subscription) (int, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(err, "check context")
	}

	logCtx := logging.Component(ctx, "usecase.subscriptions")
	err := i.uow.WithTx(ctx, func(txCtx context.Context) error {
		for _, sub := range subs {
			if err := i.repo.ReplaceSubscription(txCtx, sub); err != nil {
				return errs.Wrapf(err, "replace subscription %s", sub.UserID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.Info(logCtx, "subscriptions imported", slog.Int("users", len(subs)))
	return len(subs), nil
}
