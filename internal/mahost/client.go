/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mahost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrRejected indicates the host refused a player registration.
	ErrRejected = errors.New("host rejected player registration")

	// ErrNotFound indicates the host does not know the item or player.
	ErrNotFound = errors.New("not found on host")

	// ErrSourceUnavailable indicates the raw audio stream could not be opened.
	ErrSourceUnavailable = errors.New("audio source unavailable")
)

// Players manages virtual player registration in the host.
type Players interface {
	Register(ctx context.Context, desc PlayerDescriptor) error
	Unregister(ctx context.Context, playerID string) error
}

// Queues drives the host playback queue for one player.
type Queues interface {
	PlayMedia(ctx context.Context, playerID, uri string) error
	Resume(ctx context.Context, playerID string) error
	Pause(ctx context.Context, playerID string) error
	Stop(ctx context.Context, playerID string) error
	Next(ctx context.Context, playerID string) error
	Previous(ctx context.Context, playerID string) error
	Items(ctx context.Context, playerID string) ([]QueueItem, error)
	NowPlaying(ctx context.Context, playerID string) (*Media, error)
}

// Library reads the host music library.
type Library interface {
	Albums(ctx context.Context, limit, offset int) ([]Album, error)
	AlbumTracks(ctx context.Context, itemID, provider string) ([]Track, error)
	Artists(ctx context.Context, limit, offset int) ([]Artist, error)
	ArtistAlbums(ctx context.Context, itemID string) ([]Album, error)
	Playlists(ctx context.Context, limit, offset int) ([]Playlist, error)
	PlaylistTracks(ctx context.Context, itemID string) ([]Track, error)
	Tracks(ctx context.Context, limit, offset int) ([]Track, error)
	RecentlyPlayed(ctx context.Context, limit int) ([]Track, error)
	Search(ctx context.Context, query string, limit int) (*SearchResults, error)
}

// Streams opens raw PCM audio for a player's queue.
type Streams interface {
	OpenPCM(ctx context.Context, playerID string) (io.ReadCloser, error)
}

// Client is the HTTP implementation of all host interfaces.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	logger  zerolog.Logger
}

var (
	_ Players = (*Client)(nil)
	_ Queues  = (*Client)(nil)
	_ Library = (*Client)(nil)
	_ Streams = (*Client)(nil)
)

// NewClient creates a host API client for the given base URL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		// Streaming requests must not time out mid-transfer.
		stream: &http.Client{Timeout: 0},
		logger: logger.With().Str("component", "mahost").Logger(),
	}
}

// Register registers a virtual player with the host.
func (c *Client) Register(ctx context.Context, desc PlayerDescriptor) error {
	resp, err := c.postJSON(ctx, "/api/players/register", desc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return fmt.Errorf("register player: unexpected status %d", resp.StatusCode)
	}
}

// Unregister removes a virtual player from the host.
func (c *Client) Unregister(ctx context.Context, playerID string) error {
	resp, err := c.postJSON(ctx, "/api/players/unregister", map[string]string{"player_id": playerID})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// Already gone on the host side; treat as success.
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unregister player: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) queueCommand(ctx context.Context, playerID, command string, body any) error {
	resp, err := c.postJSON(ctx, "/api/queues/"+url.PathEscape(playerID)+"/"+command, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("queue %s: unexpected status %d", command, resp.StatusCode)
	}
	return nil
}

// PlayMedia enqueues and starts the given URI on the player's queue.
func (c *Client) PlayMedia(ctx context.Context, playerID, uri string) error {
	return c.queueCommand(ctx, playerID, "play_media", map[string]string{"uri": uri})
}

// Resume resumes the queue from its saved position.
func (c *Client) Resume(ctx context.Context, playerID string) error {
	return c.queueCommand(ctx, playerID, "resume", nil)
}

// Pause pauses the queue, preserving position.
func (c *Client) Pause(ctx context.Context, playerID string) error {
	return c.queueCommand(ctx, playerID, "pause", nil)
}

// Stop stops the queue.
func (c *Client) Stop(ctx context.Context, playerID string) error {
	return c.queueCommand(ctx, playerID, "stop", nil)
}

// Next skips to the next queue item.
func (c *Client) Next(ctx context.Context, playerID string) error {
	return c.queueCommand(ctx, playerID, "next", nil)
}

// Previous skips to the previous queue item.
func (c *Client) Previous(ctx context.Context, playerID string) error {
	return c.queueCommand(ctx, playerID, "previous", nil)
}

// Items returns the player's queue contents.
func (c *Client) Items(ctx context.Context, playerID string) ([]QueueItem, error) {
	var out struct {
		Items []QueueItem `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/queues/"+url.PathEscape(playerID)+"/items", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// NowPlaying returns the media the player's queue is currently set to.
// Returns ErrNotFound while the host has not populated it yet.
func (c *Client) NowPlaying(ctx context.Context, playerID string) (*Media, error) {
	var out Media
	if err := c.getJSON(ctx, "/api/queues/"+url.PathEscape(playerID)+"/now_playing", nil, &out); err != nil {
		return nil, err
	}
	if out.URI == "" {
		return nil, ErrNotFound
	}
	return &out, nil
}

// Albums lists library albums.
func (c *Client) Albums(ctx context.Context, limit, offset int) ([]Album, error) {
	var out struct {
		Items []Album `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/music/albums", pageQuery(limit, offset), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// AlbumTracks lists tracks of an album.
func (c *Client) AlbumTracks(ctx context.Context, itemID, provider string) ([]Track, error) {
	if provider == "" {
		provider = "library"
	}
	var out struct {
		Items []Track `json:"items"`
	}
	q := url.Values{"provider": {provider}}
	if err := c.getJSON(ctx, "/api/music/albums/"+url.PathEscape(itemID)+"/tracks", q, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Artists lists library artists.
func (c *Client) Artists(ctx context.Context, limit, offset int) ([]Artist, error) {
	var out struct {
		Items []Artist `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/music/artists", pageQuery(limit, offset), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ArtistAlbums lists albums of an artist.
func (c *Client) ArtistAlbums(ctx context.Context, itemID string) ([]Album, error) {
	var out struct {
		Items []Album `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/music/artists/"+url.PathEscape(itemID)+"/albums", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Playlists lists library playlists.
func (c *Client) Playlists(ctx context.Context, limit, offset int) ([]Playlist, error) {
	var out struct {
		Items []Playlist `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/music/playlists", pageQuery(limit, offset), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// PlaylistTracks lists tracks of a playlist.
func (c *Client) PlaylistTracks(ctx context.Context, itemID string) ([]Track, error) {
	var out struct {
		Items []Track `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/music/playlists/"+url.PathEscape(itemID)+"/tracks", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Tracks lists library tracks.
func (c *Client) Tracks(ctx context.Context, limit, offset int) ([]Track, error) {
	var out struct {
		Items []Track `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/music/tracks", pageQuery(limit, offset), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// RecentlyPlayed lists tracks ordered by last play time.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]Track, error) {
	var out struct {
		Items []Track `json:"items"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}, "order_by": {"last_played"}}
	if err := c.getJSON(ctx, "/api/music/tracks", q, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Search searches the library across all media types.
func (c *Client) Search(ctx context.Context, query string, limit int) (*SearchResults, error) {
	var out SearchResults
	q := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/api/music/search", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenPCM opens the raw PCM (s16le 44100 stereo) stream for the player's
// current queue position. The returned reader must be closed by the caller.
func (c *Client) OpenPCM(ctx context.Context, playerID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/streams/"+url.PathEscape(playerID)+"/pcm", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("host request %s: %w", path, err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("host request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("host request %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}

func pageQuery(limit, offset int) url.Values {
	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
}
