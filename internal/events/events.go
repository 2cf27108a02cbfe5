// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package events publishes streamer events to Redis for post-processing
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/pipeline"
	"github.com/ManuGH/streamrec/internal/streamer"
)

// Event types.
const (
	TypeState          = "state"
	TypeLive           = "live"
	TypeSegment        = "segment"
	TypeStreamFinished = "stream_finished"
	TypeCancelled      = "cancelled"
)

const publishTimeout = 2 * time.Second

// Event is the JSON payload published on the channel.
type Event struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Streamer string    `json:"streamer"`
	URL      string    `json:"url"`
	Platform string    `json:"platform"`

	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Live   *bool  `json:"live,omitempty"`
	Reason string `json:"reason,omitempty"`

	Segment  *SegmentInfo  `json:"segment,omitempty"`
	Segments []SegmentInfo `json:"segments,omitempty"`
}

type SegmentInfo struct {
	Index      int     `json:"index"`
	Path       string  `json:"path"`
	Size       int64   `json:"size"`
	Duration   float64 `json:"durationSeconds"`
	Codec      string  `json:"codec,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
}

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Publisher is a streamer.Listener that publishes every event as JSON and
// keeps the latest state of each streamer in a hash.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
	now     func() time.Time

	published atomic.Int64
	failed    atomic.Int64
}

var _ streamer.Listener = (*Publisher)(nil)

// New connects to Redis and returns a publisher.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	p := newPublisher(client, cfg.Channel)
	p.logger.Info().Str("addr", cfg.Addr).Str("channel", p.channel).Msg("connected to redis event sink")
	return p, nil
}

func newPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = "streamrec:events"
	}
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  xglog.WithComponent("events"),
		now:     time.Now,
	}
}

// StatusKey is the hash holding the latest state of the streamer at url.
func (p *Publisher) StatusKey(url string) string {
	return p.channel + ":status:" + url
}

func (p *Publisher) OnStateChange(s streamer.Streamer, from, to streamer.State) {
	ev := p.event(TypeState, s)
	ev.From, ev.To = string(from), string(to)
	p.publish(ev, "state", string(to))
}

func (p *Publisher) OnLiveStatus(s streamer.Streamer, live bool) {
	ev := p.event(TypeLive, s)
	ev.Live = &live
	p.publish(ev, "live", fmt.Sprint(live))
}

// OnLastLive only updates the status hash.
func (p *Publisher) OnLastLive(s streamer.Streamer, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.HSet(ctx, p.StatusKey(s.URL), "lastLive", at.UTC().Format(time.RFC3339)).Err(); err != nil {
		p.fail(s.Name, err)
	}
}

func (p *Publisher) OnSegment(s streamer.Streamer, seg pipeline.Segment) {
	ev := p.event(TypeSegment, s)
	info := segmentInfo(seg)
	ev.Segment = &info
	p.publish(ev, "lastSegment", seg.Path)
}

func (p *Publisher) OnStreamFinished(s streamer.Streamer, segs []pipeline.Segment) {
	ev := p.event(TypeStreamFinished, s)
	ev.Segments = make([]SegmentInfo, 0, len(segs))
	for _, seg := range segs {
		ev.Segments = append(ev.Segments, segmentInfo(seg))
	}
	p.publish(ev, "", "")
}

func (p *Publisher) OnCancelled(s streamer.Streamer, reason string) {
	ev := p.event(TypeCancelled, s)
	ev.Reason = reason
	p.publish(ev, "state", string(streamer.StateCancelled))
}

// Stats returns the number of published and failed events.
func (p *Publisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// HealthCheck checks if Redis is available.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) event(typ string, s streamer.Streamer) Event {
	return Event{
		Type:     typ,
		Time:     p.now().UTC(),
		Streamer: s.Name,
		URL:      s.URL,
		Platform: s.Platform,
	}
}

// publish sends ev and, when field is set, records field=value in the
// streamer's status hash within the same pipeline.
func (p *Publisher) publish(ev Event, field, value string) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn().Err(err).Str(xglog.FieldEvent, ev.Type).Msg("json marshal failed")
		p.failed.Add(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, data)
		if field != "" {
			pipe.HSet(ctx, p.StatusKey(ev.URL), field, value, "updated", ev.Time.Format(time.RFC3339))
		}
		return nil
	})
	if err != nil {
		p.fail(ev.Streamer, err)
		return
	}
	p.published.Add(1)
}

func (p *Publisher) fail(name string, err error) {
	p.failed.Add(1)
	p.logger.Warn().Err(err).
		Str(xglog.FieldStreamer, name).
		Str(xglog.FieldEvent, "events.publish_failed").
		Msg("redis publish failed")
}

func segmentInfo(seg pipeline.Segment) SegmentInfo {
	info := SegmentInfo{
		Index:    seg.Index,
		Path:     seg.Path,
		Size:     seg.Size,
		Duration: seg.Duration.Seconds(),
	}
	if !seg.Metadata.IsZero() {
		info.Codec = seg.Metadata.Codec.String()
		info.Resolution = seg.Metadata.Resolution()
	}
	return info
}
