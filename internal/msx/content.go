/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package msx builds the JSON documents the Media Station X app consumes:
// menus, content pages, and native playlists. Field names follow the MSX
// content format, camelCase included.
package msx

// Menu is the root menu document ({msx}/menu.json style).
type Menu struct {
	Name      string     `json:"name,omitempty"`
	Headline  string     `json:"headline,omitempty"`
	Logo      string     `json:"logo,omitempty"`
	Reference string     `json:"reference,omitempty"`
	Menu      []MenuItem `json:"menu,omitempty"`
}

// MenuItem is one entry of the root menu.
type MenuItem struct {
	Icon  string `json:"icon,omitempty"`
	Label string `json:"label,omitempty"`
	Data  string `json:"data,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Content is an MSX content page.
type Content struct {
	Type      string    `json:"type,omitempty"`
	Headline  string    `json:"headline,omitempty"`
	Template  *Template `json:"template,omitempty"`
	Items     []Item    `json:"items,omitempty"`
	Pages     []Page    `json:"pages,omitempty"`
	Action    string    `json:"action,omitempty"`
	Extension string    `json:"extension,omitempty"`
}

// Page groups items for paged content.
type Page struct {
	Items []Item `json:"items,omitempty"`
}

// Template sets the shared layout for a page's items.
type Template struct {
	Type        string `json:"type,omitempty"`
	Layout      string `json:"layout,omitempty"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
	ImageFiller string `json:"imageFiller,omitempty"`
}

// Item is one tile or row on a content page.
type Item struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Layout      string `json:"layout,omitempty"`
	Title       string `json:"title,omitempty"`
	TitleFooter string `json:"titleFooter,omitempty"`
	Label       string `json:"label,omitempty"`
	PlayerLabel string `json:"playerLabel,omitempty"`
	Image       string `json:"image,omitempty"`
	ImageFiller string `json:"imageFiller,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Action      string `json:"action,omitempty"`
	Data        string `json:"data,omitempty"`
	Enumerate   bool   `json:"enumerate,omitempty"`
}

// Playlist is a native MSX audio playlist pushed to the TV or fetched from
// a playlist URL.
type Playlist struct {
	Name     string         `json:"name,omitempty"`
	Start    *PlaylistStart `json:"start,omitempty"`
	Items    []PlaylistItem `json:"items,omitempty"`
	Loop     bool           `json:"loop,omitempty"`
	Shuffle  bool           `json:"shuffle,omitempty"`
	Headline string         `json:"headline,omitempty"`
}

// PlaylistStart controls where native playback begins.
type PlaylistStart struct {
	Index  int    `json:"index"`
	Action string `json:"action,omitempty"`
}

// PlaylistItem is one playable entry of a native playlist.
type PlaylistItem struct {
	Title      string `json:"title,omitempty"`
	Label      string `json:"label,omitempty"`
	Image      string `json:"image,omitempty"`
	URL        string `json:"url,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	NextAction string `json:"nextAction,omitempty"`
	PrevAction string `json:"prevAction,omitempty"`
}
