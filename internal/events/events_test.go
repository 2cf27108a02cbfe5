// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/flv"
	"github.com/ManuGH/streamrec/internal/pipeline"
	"github.com/ManuGH/streamrec/internal/streamer"
)

var alice = streamer.Streamer{ID: "id-a", Name: "alice", URL: "https://example.com/alice", Platform: "direct"}

func setup(t *testing.T) (*miniredis.Miniredis, *Publisher, *redis.PubSub) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := newPublisher(client, "test:events")
	p.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { _ = p.Close() })

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(context.Background(), "test:events")
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return mr, p, sub
}

func next(t *testing.T, sub *redis.PubSub) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	return ev
}

func TestPublisher_StateAndLive(t *testing.T) {
	mr, p, sub := setup(t)

	p.OnStateChange(alice, streamer.StateIdle, streamer.StateCheckingLive)
	ev := next(t, sub)
	assert.Equal(t, TypeState, ev.Type)
	assert.Equal(t, "idle", ev.From)
	assert.Equal(t, "checking_live", ev.To)
	assert.Equal(t, "alice", ev.Streamer)

	p.OnLiveStatus(alice, true)
	ev = next(t, sub)
	assert.Equal(t, TypeLive, ev.Type)
	require.NotNil(t, ev.Live)
	assert.True(t, *ev.Live)

	key := p.StatusKey(alice.URL)
	assert.Equal(t, "checking_live", mr.HGet(key, "state"))
	assert.Equal(t, "true", mr.HGet(key, "live"))

	published, failed := p.Stats()
	assert.Equal(t, int64(2), published)
	assert.Zero(t, failed)
}

func TestPublisher_SegmentsAndFinish(t *testing.T) {
	mr, p, sub := setup(t)
	seg := pipeline.Segment{
		Index: 3, Path: "/out/alice-3.flv", Size: 2048, Duration: 90 * time.Second,
		Metadata: flv.CodecMetadata{Codec: flv.VideoCodecAVC, Width: 1920, Height: 1080},
	}

	p.OnSegment(alice, seg)
	ev := next(t, sub)
	assert.Equal(t, TypeSegment, ev.Type)
	require.NotNil(t, ev.Segment)
	assert.Equal(t, 3, ev.Segment.Index)
	assert.Equal(t, "/out/alice-3.flv", ev.Segment.Path)
	assert.InDelta(t, 90.0, ev.Segment.Duration, 0.001)
	assert.Equal(t, seg.Metadata.Resolution(), ev.Segment.Resolution)
	assert.Equal(t, "/out/alice-3.flv", mr.HGet(p.StatusKey(alice.URL), "lastSegment"))

	p.OnStreamFinished(alice, []pipeline.Segment{seg, {Index: 4, Path: "/out/alice-4.flv"}})
	ev = next(t, sub)
	assert.Equal(t, TypeStreamFinished, ev.Type)
	assert.Len(t, ev.Segments, 2)
	assert.Empty(t, ev.Segments[1].Codec)

	p.OnCancelled(alice, "removed from config")
	ev = next(t, sub)
	assert.Equal(t, TypeCancelled, ev.Type)
	assert.Equal(t, "removed from config", ev.Reason)
}

func TestPublisher_LastLive(t *testing.T) {
	mr, p, _ := setup(t)
	at := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	p.OnLastLive(alice, at)
	assert.Equal(t, "2025-05-06T07:08:09Z", mr.HGet(p.StatusKey(alice.URL), "lastLive"))
}

func TestPublisher_RedisDownCountsFailure(t *testing.T) {
	mr, p, _ := setup(t)
	mr.Close()

	p.OnLiveStatus(alice, false)
	_, failed := p.Stats()
	assert.Equal(t, int64(1), failed)
	assert.Error(t, p.HealthCheck(context.Background()))
}

func TestNew_ConnectFailure(t *testing.T) {
	_, err := New(context.Background(), Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestNew_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	p, err := New(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, "streamrec:events", p.channel)
	assert.NoError(t, p.HealthCheck(context.Background()))
}
