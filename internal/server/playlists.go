/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/mahost"
	"github.com/friendsincode/msx_bridge/internal/msx"
)

func startParam(r *http.Request) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("start")); err == nil && v >= 0 {
		return v
	}
	return 0
}

// serveNativePlaylist maps tracks to a native MSX playlist rotated so the
// requested start track plays first, and records the rotation on the
// player so later queue-index pushes translate correctly.
func (s *Server) serveNativePlaylist(w http.ResponseWriter, r *http.Request, name string, tracks []mahost.Track) {
	key, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	if len(tracks) == 0 {
		writeJSON(w, http.StatusOK, msx.Playlist{Name: name})
		return
	}
	start := startParam(r) % len(tracks)
	if p := s.directory.Get(key); p != nil {
		p.SetQueuePlaylist(string(key), start, len(tracks))
	}
	writeJSON(w, http.StatusOK, mapper.NativePlaylist(name, tracks, key, start))
}

func (s *Server) handleAlbumPlaylist(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.library.AlbumTracks(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("provider"))
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	s.serveNativePlaylist(w, r, "Album", tracks)
}

func (s *Server) handlePlaylistPlaylist(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.library.PlaylistTracks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	s.serveNativePlaylist(w, r, "Playlist", tracks)
}

func (s *Server) handleTracksPlaylist(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	tracks, err := s.library.Tracks(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	s.serveNativePlaylist(w, r, "Tracks", tracks)
}

func (s *Server) handleRecentlyPlayedPlaylist(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.library.RecentlyPlayed(r.Context(), defaultPageLimit)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	s.serveNativePlaylist(w, r, "Recently Played", tracks)
}

func (s *Server) handleSearchPlaylist(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results, err := s.library.Search(r.Context(), query, 50)
	if err != nil {
		http.Error(w, "search unavailable", http.StatusBadGateway)
		return
	}
	s.serveNativePlaylist(w, r, "Results for \""+query+"\"", results.Tracks)
}

// handleQueuePlaylist exposes a player's current host queue as a native
// playlist, so the TV can show and navigate what is actually queued.
func (s *Server) handleQueuePlaylist(w http.ResponseWriter, r *http.Request) {
	key := identity.Key(identity.StripExtension(chi.URLParam(r, "key")))
	s.directory.Touch(key)
	items, err := s.host.Items(r.Context(), string(key))
	if err != nil {
		http.Error(w, "queue unavailable", http.StatusBadGateway)
		return
	}
	tracks := make([]mahost.Track, 0, len(items))
	for _, item := range items {
		tracks = append(tracks, mahost.Track{
			Name:     item.Name,
			URI:      item.URI,
			Artist:   item.Artist,
			Duration: item.Duration,
			ImageURL: item.ImageURL,
		})
	}
	_, deviceParam := identity.ResolveWithParam(r)
	mapper := msx.NewMapper(deviceParam)
	if len(tracks) == 0 {
		writeJSON(w, http.StatusOK, msx.Playlist{Name: "Queue"})
		return
	}
	writeJSON(w, http.StatusOK, mapper.NativePlaylist("Queue", tracks, key, startParam(r)%len(tracks)))
}
