/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/msx"
	"github.com/friendsincode/msx_bridge/internal/version"
)

const defaultPageLimit = 200

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// touchIdentity resolves the request's player identity, get-or-creates the
// directory entry, and refreshes its activity clock. Every MSX-facing page
// goes through here so browsing alone keeps a player alive.
func (s *Server) touchIdentity(w http.ResponseWriter, r *http.Request) (identity.Key, *msx.Mapper, bool) {
	key, deviceParam := identity.ResolveWithParam(r)
	if _, err := s.directory.GetOrCreate(r.Context(), key, ""); err != nil {
		s.logger.Warn().Err(err).Str("player_key", string(key)).Msg("Player creation failed")
		http.Error(w, "player registration failed", http.StatusBadGateway)
		return key, nil, false
	}
	s.directory.Touch(key)
	return key, msx.NewMapper(deviceParam), true
}

// handleStart serves the MSX bootstrap document.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	_, deviceParam := identity.ResolveWithParam(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "Music Assistant",
		"version":   version.Version,
		"parameter": "menu:" + identity.AppendDeviceParam("/msx/menu.json", deviceParam),
	})
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mapper.MenuPage())
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func (s *Server) handleAlbumsPage(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	albums, err := s.library.Albums(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, mapper.AlbumsPage("Albums", albums))
}

func (s *Server) handleArtistsPage(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	artists, err := s.library.Artists(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, mapper.ArtistsPage("Artists", artists))
}

func (s *Server) handlePlaylistsPage(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	playlists, err := s.library.Playlists(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, mapper.PlaylistsPage("Playlists", playlists))
}

func (s *Server) handleTracksPage(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	tracks, err := s.library.Tracks(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK,
		mapper.TracksPage("Tracks", tracks, "/msx/playlist/tracks.json", ""))
}

func (s *Server) handleRecentlyPlayedPage(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	tracks, err := s.library.RecentlyPlayed(r.Context(), defaultPageLimit)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK,
		mapper.TracksPage("Recently Played", tracks, "/msx/playlist/recently-played.json", ""))
}

func (s *Server) handleAlbumTracksPage(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "id")
	tracks, err := s.library.AlbumTracks(r.Context(), itemID, r.URL.Query().Get("provider"))
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	fallback := ""
	if len(tracks) > 0 {
		for _, t := range tracks {
			if t.ImageURL != "" {
				fallback = t.ImageURL
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, mapper.TracksPage("Album", tracks,
		"/msx/playlist/album/"+url.PathEscape(itemID)+".json", fallback))
}

func (s *Server) handleArtistAlbumsPage(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	albums, err := s.library.ArtistAlbums(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, mapper.AlbumsPage("Albums", albums))
}

func (s *Server) handlePlaylistTracksPage(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "id")
	tracks, err := s.library.PlaylistTracks(r.Context(), itemID)
	if err != nil {
		http.Error(w, "library unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, mapper.TracksPage("Playlist", tracks,
		"/msx/playlist/playlist/"+url.PathEscape(itemID)+".json", ""))
}

// handleSearchPage offers the search entry tile; the input plugin collects
// the query on the TV and requests /msx/search.json with it.
func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	_, deviceParam := identity.ResolveWithParam(r)
	s.directory.Touch(identity.Resolve(r))
	writeJSON(w, http.StatusOK, msx.Content{
		Type:     "list",
		Headline: "Search",
		Template: msx.ListTemplate(),
		Items: []msx.Item{{
			Icon:  "search",
			Title: "Search the library",
			Action: "content:request:interaction:init:" +
				identity.AppendDeviceParam("/msx/search-input.json", deviceParam),
		}},
	})
}

func (s *Server) handleSearchInput(w http.ResponseWriter, r *http.Request) {
	_, deviceParam := identity.ResolveWithParam(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"type":      "input",
		"headline":  "Search",
		"action":    "content:" + identity.AppendDeviceParam("/msx/search.json", deviceParam),
		"parameter": "q",
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	_, mapper, ok := s.touchIdentity(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, msx.Content{Type: "list", Headline: "Search"})
		return
	}
	results, err := s.library.Search(r.Context(), query, 50)
	if err != nil {
		http.Error(w, "search unavailable", http.StatusBadGateway)
		return
	}

	items := make([]msx.Item, 0,
		len(results.Artists)+len(results.Albums)+len(results.Tracks)+len(results.Playlists))
	for _, a := range results.Artists {
		items = append(items, mapper.ArtistItem(a))
	}
	for _, a := range results.Albums {
		items = append(items, mapper.AlbumItem(a))
	}
	searchPlaylist := "/msx/playlist/search.json?" + url.Values{"q": {query}}.Encode()
	for i, t := range results.Tracks {
		items = append(items, mapper.TrackItem(t, searchPlaylist, i, ""))
	}
	for _, p := range results.Playlists {
		items = append(items, mapper.PlaylistTile(p))
	}
	writeJSON(w, http.StatusOK, msx.Content{
		Type:     "list",
		Headline: "Results for \"" + query + "\"",
		Template: msx.ListTemplate(),
		Items:    items,
	})
}
