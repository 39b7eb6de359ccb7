/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/logbuffer"
	"github.com/friendsincode/msx_bridge/internal/player"
)

// playerFromURL resolves the {key} route parameter to a directory entry.
func (s *Server) playerFromURL(w http.ResponseWriter, r *http.Request) (*player.Player, bool) {
	key := identity.Key(identity.StripExtension(chi.URLParam(r, "key")))
	p := s.directory.Get(key)
	if p == nil {
		http.Error(w, "unknown player", http.StatusNotFound)
		return nil, false
	}
	return p, true
}

func (s *Server) handleAPIAlbums(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	albums, err := s.library.Albums(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, albums)
}

func (s *Server) handleAPIAlbumTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.library.AlbumTracks(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("provider"))
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleAPIArtists(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	artists, err := s.library.Artists(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, artists)
}

func (s *Server) handleAPIArtistAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.library.ArtistAlbums(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, albums)
}

func (s *Server) handleAPIPlaylists(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	playlists, err := s.library.Playlists(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleAPIPlaylistTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.library.PlaylistTracks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleAPITracks(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	tracks, err := s.library.Tracks(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.library.Search(r.Context(), r.URL.Query().Get("q"), 50)
	if err != nil {
		http.Error(w, "search unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleAPIRecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.library.RecentlyPlayed(r.Context(), defaultPageLimit)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// handleAPIPlay starts playback of a URI on a player.
func (s *Server) handleAPIPlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerKey string `json:"player_key"`
		URI       string `json:"uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URI == "" {
		http.Error(w, "player_key and uri required", http.StatusBadRequest)
		return
	}
	key := identity.Key(req.PlayerKey)
	if req.PlayerKey == "" {
		key = identity.Resolve(r)
	}
	p, err := s.directory.GetOrCreate(r.Context(), key, "")
	if err != nil {
		http.Error(w, "player registration failed", http.StatusBadGateway)
		return
	}
	if err := s.playMedia(r.Context(), p, req.URI, nil); err != nil {
		http.Error(w, "play failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "playing", "player_key": string(key)})
}

func (s *Server) handleAPIPause(w http.ResponseWriter, r *http.Request) {
	p, ok := s.playerFromURL(w, r)
	if !ok {
		return
	}
	if err := s.pause(r.Context(), p, nil); err != nil {
		http.Error(w, "pause failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleAPIResume(w http.ResponseWriter, r *http.Request) {
	p, ok := s.playerFromURL(w, r)
	if !ok {
		return
	}
	if err := s.resume(r.Context(), p, nil); err != nil {
		http.Error(w, "resume failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}

func (s *Server) handleAPIStop(w http.ResponseWriter, r *http.Request) {
	p, ok := s.playerFromURL(w, r)
	if !ok {
		return
	}
	if err := s.stop(r.Context(), p, nil); err != nil {
		// The TV side teardown already happened; report the host error.
		http.Error(w, "host stop failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleAPIQuickStop works on any key, registered or not, and never talks
// to the host. The dashboard's big red button.
func (s *Server) handleAPIQuickStop(w http.ResponseWriter, r *http.Request) {
	key := identity.Key(identity.StripExtension(chi.URLParam(r, "key")))
	s.quickStop(key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleAPINext(w http.ResponseWriter, r *http.Request) {
	p, ok := s.playerFromURL(w, r)
	if !ok {
		return
	}
	if err := s.next(r.Context(), p); err != nil {
		http.Error(w, "next failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIPrevious(w http.ResponseWriter, r *http.Request) {
	p, ok := s.playerFromURL(w, r)
	if !ok {
		return
	}
	if err := s.previous(r.Context(), p); err != nil {
		http.Error(w, "previous failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIPlayers(w http.ResponseWriter, r *http.Request) {
	players := s.directory.List()
	out := make([]player.Snapshot, 0, len(players))
	for _, p := range players {
		out = append(out, p.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIDisable(w http.ResponseWriter, r *http.Request) {
	key := identity.Key(identity.StripExtension(chi.URLParam(r, "key")))
	if !s.directory.SetDisabled(key, true) {
		http.Error(w, "unknown player", http.StatusNotFound)
		return
	}
	// A disabled player must not keep playing; the entry itself survives.
	s.notifier.NotifyStop(key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (s *Server) handleAPIEnable(w http.ResponseWriter, r *http.Request) {
	key := identity.Key(identity.StripExtension(chi.URLParam(r, "key")))
	if !s.directory.SetDisabled(key, false) {
		http.Error(w, "unknown player", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

// handleAPIGroup adds and removes group members on a leader.
func (s *Server) handleAPIGroup(w http.ResponseWriter, r *http.Request) {
	p, ok := s.playerFromURL(w, r)
	if !ok {
		return
	}
	var req struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	add := make([]identity.Key, 0, len(req.Add))
	for _, k := range req.Add {
		add = append(add, identity.Key(k))
	}
	remove := make([]identity.Key, 0, len(req.Remove))
	for _, k := range req.Remove {
		remove = append(remove, identity.Key(k))
	}
	p.SetMembers(add, remove)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"members": p.GroupMembers(),
	})
}

func (s *Server) handleAPIVolume(w http.ResponseWriter, r *http.Request) {
	p, ok := s.playerFromURL(w, r)
	if !ok {
		return
	}
	level, err := strconv.Atoi(r.URL.Query().Get("level"))
	if err != nil {
		http.Error(w, "level required", http.StatusBadRequest)
		return
	}
	p.SetVolume(level)
	writeJSON(w, http.StatusOK, map[string]int{"volume": p.Volume()})
}

func (s *Server) handleAPILogs(w http.ResponseWriter, r *http.Request) {
	if s.logBuffer == nil {
		writeJSON(w, http.StatusOK, []logbuffer.LogEntry{})
		return
	}
	limit := 200
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	entries := s.logBuffer.Query(logbuffer.QueryParams{
		Level:     r.URL.Query().Get("level"),
		Component: r.URL.Query().Get("component"),
		Search:    r.URL.Query().Get("search"),
		Limit:     limit,
	})
	writeJSON(w, http.StatusOK, entries)
}
