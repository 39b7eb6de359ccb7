/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mahost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zerolog.Nop())
}

func TestRegisterRejectedOn4xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	err := c.Register(context.Background(), PlayerDescriptor{PlayerID: "msx_tv1", Name: "TV"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestRegisterAccepts201(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	if err := c.Register(context.Background(), PlayerDescriptor{PlayerID: "msx_tv1"}); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestUnregisterTreats404AsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	if err := c.Unregister(context.Background(), "msx_tv1"); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestQueueCommand404IsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	if err := c.Pause(context.Background(), "msx_tv1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPlayMediaSendsURI(t *testing.T) {
	var gotPath, gotURI string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotURI = body["uri"]
		w.WriteHeader(http.StatusOK)
	})
	if err := c.PlayMedia(context.Background(), "msx_tv1", "library://track/1"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if gotPath != "/api/queues/msx_tv1/play_media" {
		t.Errorf("path = %q", gotPath)
	}
	if gotURI != "library://track/1" {
		t.Errorf("uri = %q", gotURI)
	}
}

func TestNowPlayingEmptyURIIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Media{Title: "loading"})
	})
	if _, err := c.NowPlaying(context.Background(), "msx_tv1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestNowPlayingReturnsMedia(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Media{
			URI: "library://track/1", Title: "Song", Duration: 200, QueueItemID: "qi1",
		})
	})
	media, err := c.NowPlaying(context.Background(), "msx_tv1")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if media.Title != "Song" || media.Duration != 200 || media.QueueItemID != "qi1" {
		t.Fatalf("media = %+v", media)
	}
}

func TestAlbumsUnwrapsItemsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "10" || r.URL.Query().Get("offset") != "5" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"items":[{"item_id":"al1","name":"A"},{"item_id":"al2","name":"B"}]}`))
	})
	albums, err := c.Albums(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(albums) != 2 || albums[1].ItemID != "al2" {
		t.Fatalf("albums = %+v", albums)
	}
}

func TestOpenPCMNon200IsSourceUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := c.OpenPCM(context.Background(), "msx_tv1"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestOpenPCMStreamsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("raw-pcm-bytes"))
	})
	rc, err := c.OpenPCM(context.Background(), "msx_tv1")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "raw-pcm-bytes" {
		t.Fatalf("data = %q", data)
	}
}
