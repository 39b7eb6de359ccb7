/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package msx

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/mahost"
)

// Mapper turns host library items into MSX content. deviceParam is the
// encoded "device_id=..." pair from identity.ResolveWithParam; when
// non-empty it is threaded into every bridge-relative URL so follow-up
// requests resolve to the same player key regardless of NAT or proxies.
type Mapper struct {
	deviceParam string
}

// NewMapper creates a mapper for one request's device identity.
func NewMapper(deviceParam string) *Mapper {
	return &Mapper{deviceParam: deviceParam}
}

func (m *Mapper) bridgeURL(path string) string {
	return identity.AppendDeviceParam(path, m.deviceParam)
}

// contentAction wraps a bridge-relative content page URL in an MSX action.
func (m *Mapper) contentAction(path string) string {
	return "content:" + m.bridgeURL(path)
}

// audioAction builds the action that makes the TV request audio for uri.
func (m *Mapper) audioAction(uri string) string {
	q := url.Values{}
	q.Set("uri", uri)
	return "audio:plugin:" + m.bridgeURL("/msx/plugin.html?"+q.Encode())
}

// playlistAction points the TV at a native playlist document.
func (m *Mapper) playlistAction(path string) string {
	return "playlist:" + m.bridgeURL(path)
}

// DurationLabel formats seconds as m:ss (or h:mm:ss past the hour).
func DurationLabel(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	h := seconds / 3600
	mnt := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%d:%02d", mnt, s)
}

// GridTemplate is the default template for image tile pages.
func GridTemplate() *Template {
	return &Template{
		Type:        "separate",
		Layout:      "0,0,2,4",
		Color:       "msx-glass",
		ImageFiller: "cover",
	}
}

// ListTemplate is the row layout used for track lists.
func ListTemplate() *Template {
	return &Template{
		Type:   "separate",
		Layout: "0,0,12,1",
		Color:  "msx-glass",
	}
}

// AlbumItem maps a library album to a tile opening its track page.
func (m *Mapper) AlbumItem(a mahost.Album) Item {
	return Item{
		ID:          a.ItemID,
		Title:       a.Name,
		TitleFooter: a.Artist,
		Image:       a.ImageURL,
		ImageFiller: "cover",
		Action:      m.contentAction("/msx/albums/" + url.PathEscape(a.ItemID) + "/tracks.json"),
	}
}

// ArtistItem maps a library artist to a tile opening its album page.
func (m *Mapper) ArtistItem(a mahost.Artist) Item {
	return Item{
		ID:          a.ItemID,
		Title:       a.Name,
		Image:       a.ImageURL,
		ImageFiller: "cover",
		Action:      m.contentAction("/msx/artists/" + url.PathEscape(a.ItemID) + "/albums.json"),
	}
}

// PlaylistItem maps a library playlist to a tile opening its track page.
func (m *Mapper) PlaylistTile(p mahost.Playlist) Item {
	return Item{
		ID:          p.ItemID,
		Title:       p.Name,
		Image:       p.ImageURL,
		ImageFiller: "cover",
		Action:      m.contentAction("/msx/playlists/" + url.PathEscape(p.ItemID) + "/tracks.json"),
	}
}

// TrackItem maps a track to a row that starts native playlist playback at
// that track. playlistPath is the native playlist document holding the
// track list; index is the track's position in it.
func (m *Mapper) TrackItem(t mahost.Track, playlistPath string, index int, fallbackImage string) Item {
	image := t.ImageURL
	if image == "" {
		image = fallbackImage
	}
	sep := "?"
	if strings.Contains(playlistPath, "?") {
		sep = "&"
	}
	target := playlistPath + sep + "start=" + fmt.Sprint(index)
	return Item{
		ID:          t.ItemID,
		Title:       t.Name,
		TitleFooter: t.Artist,
		PlayerLabel: t.Name + " - " + t.Artist,
		Label:       DurationLabel(t.Duration),
		Image:       image,
		Action:      "playlist:" + m.bridgeURL(target),
	}
}

// TracksPage builds the list page for a set of tracks. fallbackImage
// covers tracks without art, typically the parent album cover.
func (m *Mapper) TracksPage(headline string, tracks []mahost.Track, playlistPath, fallbackImage string) Content {
	items := make([]Item, 0, len(tracks))
	for i, t := range tracks {
		items = append(items, m.TrackItem(t, playlistPath, i, fallbackImage))
	}
	return Content{
		Type:     "list",
		Headline: headline,
		Template: ListTemplate(),
		Items:    items,
	}
}

// AlbumsPage builds the tile page for a set of albums.
func (m *Mapper) AlbumsPage(headline string, albums []mahost.Album) Content {
	items := make([]Item, 0, len(albums))
	for _, a := range albums {
		items = append(items, m.AlbumItem(a))
	}
	return Content{
		Type:     "list",
		Headline: headline,
		Template: GridTemplate(),
		Items:    items,
	}
}

// ArtistsPage builds the tile page for a set of artists.
func (m *Mapper) ArtistsPage(headline string, artists []mahost.Artist) Content {
	items := make([]Item, 0, len(artists))
	for _, a := range artists {
		items = append(items, m.ArtistItem(a))
	}
	return Content{
		Type:     "list",
		Headline: headline,
		Template: GridTemplate(),
		Items:    items,
	}
}

// PlaylistsPage builds the tile page for a set of playlists.
func (m *Mapper) PlaylistsPage(headline string, playlists []mahost.Playlist) Content {
	items := make([]Item, 0, len(playlists))
	for _, p := range playlists {
		items = append(items, m.PlaylistTile(p))
	}
	return Content{
		Type:     "list",
		Headline: headline,
		Template: GridTemplate(),
		Items:    items,
	}
}

// MenuPage builds the top-level MSX menu. Every entry carries the caller's
// device parameter so navigation keeps resolving to the same player.
func (m *Mapper) MenuPage() Menu {
	return Menu{
		Name:     "Music Assistant",
		Headline: "Music Assistant",
		Menu: []MenuItem{
			{Icon: "album", Label: "Albums", Data: m.contentAction("/msx/albums.json")},
			{Icon: "person", Label: "Artists", Data: m.contentAction("/msx/artists.json")},
			{Icon: "queue-music", Label: "Playlists", Data: m.contentAction("/msx/playlists.json")},
			{Icon: "music-note", Label: "Tracks", Data: m.contentAction("/msx/tracks.json")},
			{Icon: "history", Label: "Recently Played", Data: m.contentAction("/msx/recently-played.json")},
			{Icon: "search", Label: "Search", Data: m.contentAction("/msx/search-page.json")},
		},
	}
}

// NativePlaylist maps tracks to a native MSX playlist whose playback URLs
// hit the bridge's audio endpoint. The item list is rotated so the started
// track sits at index 0; MSX always begins native playback at the head,
// and the host queue handles the true ordering.
func (m *Mapper) NativePlaylist(name string, tracks []mahost.Track, key identity.Key, start int) Playlist {
	n := len(tracks)
	items := make([]PlaylistItem, 0, n)
	for i := 0; i < n; i++ {
		t := tracks[(start+i)%n]
		q := url.Values{}
		q.Set("uri", t.URI)
		items = append(items, PlaylistItem{
			Title:      t.Name,
			Label:      t.Artist,
			Image:      t.ImageURL,
			Duration:   t.Duration,
			URL:        m.bridgeURL("/msx/audio/" + string(key) + ".mp3?" + q.Encode()),
			NextAction: "content:request:interaction:next",
			PrevAction: "content:request:interaction:previous",
		})
	}
	return Playlist{Name: name, Items: items}
}

// AlbumFallbackImage picks the album art to use for tracks missing their
// own image: the album's own art, else the first track that has one.
func AlbumFallbackImage(album mahost.Album, tracks []mahost.Track) string {
	if album.ImageURL != "" {
		return album.ImageURL
	}
	for _, t := range tracks {
		if t.ImageURL != "" {
			return t.ImageURL
		}
	}
	return ""
}
