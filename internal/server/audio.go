/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/msx_bridge/internal/audio"
	"github.com/friendsincode/msx_bridge/internal/config"
	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/player"
	"github.com/friendsincode/msx_bridge/internal/telemetry"
)

// responseAborter forces a streaming response to fail by expiring its
// write deadline. Safe to call from any goroutine.
type responseAborter struct {
	rc *http.ResponseController
}

func newResponseAborter(w http.ResponseWriter) *responseAborter {
	return &responseAborter{rc: http.NewResponseController(w)}
}

func (a *responseAborter) Abort() {
	// An expired deadline makes the next write fail immediately, which
	// unwinds the pump and its deferred cleanup.
	_ = a.rc.SetWriteDeadline(time.Now())
}

// handleAudio serves /msx/audio/{key}: optionally enqueue a URI on the
// player's host queue, then stream the current track. This is the URL
// native MSX playlists point at.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	key := identity.Key(identity.StripExtension(chi.URLParam(r, "key")))
	p, err := s.directory.GetOrCreate(r.Context(), key, "")
	if err != nil {
		http.Error(w, "player registration failed", http.StatusBadGateway)
		return
	}
	if p.Disabled() {
		http.Error(w, "player disabled", http.StatusForbidden)
		return
	}
	p.Touch()

	if uri := r.URL.Query().Get("uri"); uri != "" {
		if err := s.host.PlayMedia(r.Context(), string(key), uri); err != nil {
			s.logger.Warn().Err(err).Str("player_key", string(key)).Msg("Enqueue before stream failed")
			http.Error(w, "enqueue failed", http.StatusBadGateway)
			return
		}
	}

	s.serveStream(w, r, p)
}

// handleStream serves /stream/{key}: the current track without touching
// the queue, used by the play push path.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	key := identity.Key(identity.StripExtension(chi.URLParam(r, "key")))
	p, err := s.directory.GetOrCreate(r.Context(), key, "")
	if err != nil {
		http.Error(w, "player registration failed", http.StatusBadGateway)
		return
	}
	if p.Disabled() {
		http.Error(w, "player disabled", http.StatusForbidden)
		return
	}
	p.Touch()
	s.serveStream(w, r, p)
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, p *player.Player) {
	ctx, span := telemetry.StartSpan(r.Context(), "audio", "serveStream")
	defer span.End()
	span.SetAttributes(telemetry.SpanAttributes(map[string]any{
		"player_key": string(p.Key),
		"codec":      string(s.cfg.OutputFormat),
	})...)
	r = r.WithContext(ctx)

	media, err := s.pipeline.WaitForMedia(r.Context(), string(p.Key))
	if err != nil {
		if errors.Is(err, audio.ErrNoMedia) {
			http.Error(w, "nothing queued for player", http.StatusNotFound)
			return
		}
		http.Error(w, "host unavailable", http.StatusBadGateway)
		return
	}
	p.SetPlaying(media)
	span.SetAttributes(telemetry.SpanAttributes(map[string]any{"media_uri": media.URI})...)

	transport := newResponseAborter(w)

	if s.cfg.GroupStreamMode == config.GroupStreamShared {
		if leader := s.groupLeader(p.Key); leader != nil {
			reader, err := s.fanout.Subscribe(r.Context(), leader.Key)
			if err != nil {
				http.Error(w, "shared stream unavailable", http.StatusBadGateway)
				return
			}
			if err := s.pipeline.ServeReader(w, r, p.Key, media, reader, transport); err != nil {
				s.logger.Warn().Err(err).Str("player_key", string(p.Key)).Msg("Shared delivery failed")
			}
			return
		}
	}

	if err := s.pipeline.Serve(w, r, p.Key, media, transport); err != nil {
		s.logger.Warn().Err(err).Str("player_key", string(p.Key)).Msg("Delivery failed")
	}
}

// groupLeader finds the grouped player whose stream key serves. A leader
// (player with members) answers for itself and all of its members; an
// ungrouped player returns nil and streams independently.
func (s *Server) groupLeader(key identity.Key) *player.Player {
	if !s.cfg.GroupingEnabled {
		return nil
	}
	p := s.directory.Get(key)
	if p != nil && len(p.GroupMembers()) > 0 {
		return p
	}
	for _, candidate := range s.directory.List() {
		for _, member := range candidate.GroupMembers() {
			if member == key {
				return candidate
			}
		}
	}
	return nil
}
