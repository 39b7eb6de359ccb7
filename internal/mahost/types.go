/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mahost talks to the Music Assistant host that owns the music
// library, the playback queues, and the raw audio streams. The bridge core
// consumes the narrow interfaces defined here; the HTTP client is the only
// concrete implementation.
package mahost

// Album is a library album as the host reports it.
type Album struct {
	ItemID   string `json:"item_id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	ImageURL string `json:"image"`
	URI      string `json:"uri"`
}

// Artist is a library artist.
type Artist struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	ImageURL string `json:"image"`
	URI      string `json:"uri"`
}

// Playlist is a library playlist.
type Playlist struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	ImageURL string `json:"image"`
	URI      string `json:"uri"`
}

// Track is a library track.
type Track struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Duration int    `json:"duration"` // seconds
	ImageURL string `json:"image"`
	URI      string `json:"uri"`
}

// SearchResults groups search hits by media type.
type SearchResults struct {
	Artists   []Artist   `json:"artists"`
	Albums    []Album    `json:"albums"`
	Tracks    []Track    `json:"tracks"`
	Playlists []Playlist `json:"playlists"`
}

// Media describes what a queue is currently set to play.
type Media struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	ImageURL    string `json:"image_url"`
	Duration    int    `json:"duration"` // seconds, 0 when unknown
	QueueID     string `json:"queue_id"`
	QueueItemID string `json:"queue_item_id"`
	QueueIndex  int    `json:"queue_index"`
}

// QueueItem is one entry of a host playback queue.
type QueueItem struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	Artist   string `json:"artist"`
	Duration int    `json:"duration"`
	ImageURL string `json:"image"`
}

// PlayerDescriptor registers a virtual player with the host.
type PlayerDescriptor struct {
	PlayerID     string `json:"player_id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}
