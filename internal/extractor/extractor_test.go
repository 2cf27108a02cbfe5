// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package extractor_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/extractor"
	"github.com/ManuGH/streamrec/internal/streamer"
)

const livePlaylist = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:7\n#EXTINF:4.0,\nseg7.ts\n"

func origin(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/live.flv", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://live.test/" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "video/x-flv")
		_, _ = w.Write([]byte("FLV"))
	})
	mux.HandleFunc("/live.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(livePlaylist))
	})
	mux.HandleFunc("/ended.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(livePlaylist + "#EXT-X-ENDLIST\n"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDirect_ProbeLive(t *testing.T) {
	srv := origin(t)
	d := extractor.NewDirect(srv.Client(), "streamrec-test")
	headers := map[string]string{"Referer": "https://live.test/"}

	tests := []struct {
		name    string
		s       streamer.Streamer
		live    bool
		wantErr bool
	}{
		{name: "flv with headers", s: streamer.Streamer{Name: "a", MediaURL: srv.URL + "/live.flv", Headers: headers}, live: true},
		{name: "flv without referer is offline", s: streamer.Streamer{Name: "b", MediaURL: srv.URL + "/live.flv"}},
		{name: "missing path is offline", s: streamer.Streamer{Name: "c", MediaURL: srv.URL + "/nope.flv"}},
		{name: "open playlist", s: streamer.Streamer{Name: "d", MediaURL: srv.URL + "/live.m3u8"}, live: true},
		{name: "ended playlist", s: streamer.Streamer{Name: "e", MediaURL: srv.URL + "/ended.m3u8"}},
		{name: "origin error", s: streamer.Streamer{Name: "f", MediaURL: srv.URL + "/broken"}, wantErr: true},
		{name: "url fallback", s: streamer.Streamer{Name: "g", URL: srv.URL + "/live.m3u8"}, live: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live, err := d.ProbeLive(context.Background(), tt.s)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.live, live)
		})
	}
}

func TestDirect_ProbeStatusError(t *testing.T) {
	srv := origin(t)
	d := extractor.NewDirect(srv.Client(), "")
	_, err := d.ProbeLive(context.Background(), streamer.Streamer{Name: "x", MediaURL: srv.URL + "/broken"})

	var se *engine.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestDirect_RejectsBadURLs(t *testing.T) {
	d := extractor.NewDirect(nil, "")

	_, err := d.ProbeLive(context.Background(), streamer.Streamer{Name: "none"})
	assert.ErrorIs(t, err, extractor.ErrNoMediaURL)

	_, err = d.ResolveMedia(context.Background(), streamer.Streamer{Name: "ftp", MediaURL: "ftp://origin/x.flv"})
	assert.ErrorIs(t, err, engine.ErrUnsupportedURL)
}

func TestDirect_ResolveMedia(t *testing.T) {
	d := extractor.NewDirect(nil, "streamrec-test")
	info, err := d.ResolveMedia(context.Background(), streamer.Streamer{
		Name:     "alice",
		MediaURL: "https://cdn.test/alice/index.m3u8?token=abc",
		Headers:  map[string]string{"Referer": "https://live.test/"},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", info.Title)
	assert.Equal(t, engine.FormatHLS, info.Media.Format)
	assert.Equal(t, "https://cdn.test/alice/index.m3u8?token=abc", info.Media.URL)
	assert.Equal(t, map[string]string{
		"Referer":    "https://live.test/",
		"User-Agent": "streamrec-test",
	}, info.Media.Headers)
}

type staticExtractor bool

func (s staticExtractor) ProbeLive(context.Context, streamer.Streamer) (bool, error) {
	return bool(s), nil
}

func (s staticExtractor) ResolveMedia(context.Context, streamer.Streamer) (streamer.MediaInfo, error) {
	return streamer.MediaInfo{Title: "static"}, nil
}

func TestMux_Routing(t *testing.T) {
	m := extractor.NewMux(staticExtractor(false))
	m.Register("always", staticExtractor(true))

	live, err := m.ProbeLive(context.Background(), streamer.Streamer{Platform: "always"})
	require.NoError(t, err)
	assert.True(t, live)

	live, err = m.ProbeLive(context.Background(), streamer.Streamer{Platform: "other"})
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, []string{"always"}, m.Platforms())

	bare := extractor.NewMux(nil)
	_, err = bare.ResolveMedia(context.Background(), streamer.Streamer{Platform: "other"})
	assert.Error(t, err)
}
