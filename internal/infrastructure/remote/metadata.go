package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/domain/metadata"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

// MetadataClient reads the show/cast metadata feed.
type MetadataClient struct {
	client *client
	loc    *time.Location
}

var _ ports.MetadataSource = (*MetadataClient)(nil)

func NewMetadataClient(ctx context.Context, cfg config.RemoteConfig, loc *time.Location, metrics ports.PipelineMetrics) (*MetadataClient, error) {
	c, err := newClient(ctx, "metadata", cfg, metrics)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &MetadataClient{client: c, loc: loc}, nil
}

type searchDayResponse struct {
	ShowList *[]struct {
		Time    string `json:"time"`
		Musical string `json:"musical"`
		City    string `json:"city"`
		Theatre string `json:"theatre"`
		Cast    []struct {
			Artist string `json:"artist"`
			Role   string `json:"role"`
		} `json:"cast"`
	} `json:"show_list"`
}

// SearchDay lists the sessions on day's date. Rows without a usable
// time or musical are dropped.
func (m *MetadataClient) SearchDay(ctx context.Context, day time.Time) ([]metadata.Session, error) {
	date := day.In(m.loc).Format(time.DateOnly)
	query := url.Values{}
	query.Set("date", date)

	body, err := m.client.get(ctx, "search_day", query)
	if err != nil {
		return nil, errs.Wrapf(err, "fetch metadata for %s", date)
	}

	var payload searchDayResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode metadata for %s: %v", ErrBadResponse, date, err)
	}
	if payload.ShowList == nil {
		return nil, nil
	}

	sessions := make([]metadata.Session, 0, len(*payload.ShowList))
	for _, show := range *payload.ShowList {
		musical := strings.TrimSpace(show.Musical)
		if musical == "" {
			continue
		}
		start, err := time.ParseInLocation(metadata.SlotLayout, date+" "+strings.TrimSpace(show.Time), m.loc)
		if err != nil {
			continue
		}
		cast := make([]metadata.Credit, 0, len(show.Cast))
		for _, credit := range show.Cast {
			cast = append(cast, metadata.Credit{
				Artist: strings.TrimSpace(credit.Artist),
				Role:   strings.TrimSpace(credit.Role),
			})
		}
		sessions = append(sessions, metadata.Session{
			Start:   start,
			Musical: musical,
			City:    strings.TrimSpace(show.City),
			Theatre: strings.TrimSpace(show.Theatre),
			Cast:    cast,
		})
	}
	return sessions, nil
}
