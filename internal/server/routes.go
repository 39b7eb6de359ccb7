/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/telemetry"
)

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Get("/", s.handleDashboard)

	// MSX bootstrap and content pages.
	s.router.Route("/msx", func(r chi.Router) {
		r.Get("/start.json", s.handleStart)
		r.Get("/menu.json", s.handleMenu)
		r.Get("/albums.json", s.handleAlbumsPage)
		r.Get("/artists.json", s.handleArtistsPage)
		r.Get("/playlists.json", s.handlePlaylistsPage)
		r.Get("/tracks.json", s.handleTracksPage)
		r.Get("/recently-played.json", s.handleRecentlyPlayedPage)
		r.Get("/search-page.json", s.handleSearchPage)
		r.Get("/search-input.json", s.handleSearchInput)
		r.Get("/search.json", s.handleSearch)
		r.Get("/albums/{id}/tracks.json", s.handleAlbumTracksPage)
		r.Get("/artists/{id}/albums.json", s.handleArtistAlbumsPage)
		r.Get("/playlists/{id}/tracks.json", s.handlePlaylistTracksPage)

		// Native playlists.
		r.Get("/playlist/album/{id}.json", s.handleAlbumPlaylist)
		r.Get("/playlist/playlist/{id}.json", s.handlePlaylistPlaylist)
		r.Get("/playlist/tracks.json", s.handleTracksPlaylist)
		r.Get("/playlist/recently-played.json", s.handleRecentlyPlayedPlaylist)
		r.Get("/playlist/search.json", s.handleSearchPlaylist)
		r.Get("/queue-playlist/{key}.json", s.handleQueuePlaylist)

		// Audio delivery.
		r.Get("/audio/{key}", s.handleAudio)

		// TVX plugin assets.
		r.Get("/plugin.html", s.serveStatic("static/plugin.html", "text/html; charset=utf-8"))
		r.Get("/interaction.js", s.serveStatic("static/interaction.js", "application/javascript"))
		r.Get("/input.html", s.serveStatic("static/input.html", "text/html; charset=utf-8"))
		r.Get("/input.js", s.serveStatic("static/input.js", "application/javascript"))
	})

	// Direct stream of the current track.
	s.router.Get("/stream/{key}", s.handleStream)

	// Push channel.
	s.router.Get("/ws", s.handleWebSocket)

	// REST control and library facade.
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/albums", s.handleAPIAlbums)
		r.Get("/albums/{id}/tracks", s.handleAPIAlbumTracks)
		r.Get("/artists", s.handleAPIArtists)
		r.Get("/artists/{id}/albums", s.handleAPIArtistAlbums)
		r.Get("/playlists", s.handleAPIPlaylists)
		r.Get("/playlists/{id}/tracks", s.handleAPIPlaylistTracks)
		r.Get("/tracks", s.handleAPITracks)
		r.Get("/search", s.handleAPISearch)
		r.Get("/recently-played", s.handleAPIRecentlyPlayed)

		r.Post("/play", s.handleAPIPlay)
		r.HandleFunc("/pause/{key}", s.handleAPIPause)
		r.HandleFunc("/resume/{key}", s.handleAPIResume)
		r.HandleFunc("/stop/{key}", s.handleAPIStop)
		r.HandleFunc("/quick-stop/{key}", s.handleAPIQuickStop)
		r.HandleFunc("/next/{key}", s.handleAPINext)
		r.HandleFunc("/previous/{key}", s.handleAPIPrevious)

		r.Get("/players", s.handleAPIPlayers)
		r.Post("/players/{key}/disable", s.handleAPIDisable)
		r.Post("/players/{key}/enable", s.handleAPIEnable)
		r.Post("/players/{key}/group", s.handleAPIGroup)
		r.Post("/players/{key}/volume", s.handleAPIVolume)

		r.Get("/logs", s.handleAPILogs)
	})

	s.router.Handle("/metrics", telemetry.Handler())
}

func (s *Server) serveStatic(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := staticFS.ReadFile(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

// handleWebSocket attaches a TV's push channel. Identity comes from the
// handshake request, so a TV with a device_id keeps its channel across IP
// changes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	key := identity.Resolve(r)
	if _, err := s.directory.GetOrCreate(r.Context(), key, ""); err != nil {
		http.Error(w, "player registration failed", http.StatusBadGateway)
		return
	}
	s.directory.Touch(key)
	s.notifier.Handle(w, r, key, func() { s.directory.Touch(key) })
}
