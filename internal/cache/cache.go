/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for host library data.
// MSX televisions re-request content pages on every navigation step, so the
// same album and track listings get fetched from the host over and over.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/mahost"
)

// Default TTL values for different cache types
const (
	DefaultListingTTL = 5 * time.Minute
	DefaultTracksTTL  = 15 * time.Minute
	DefaultSearchTTL  = 1 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyAlbums         = "msxbridge:cache:albums:"          // + limit:offset
	KeyArtists        = "msxbridge:cache:artists:"         // + limit:offset
	KeyPlaylists      = "msxbridge:cache:playlists:"       // + limit:offset
	KeyTracks         = "msxbridge:cache:tracks:"          // + limit:offset
	KeyAlbumTracks    = "msxbridge:cache:album_tracks:"    // + item_id
	KeyArtistAlbums   = "msxbridge:cache:artist_albums:"   // + item_id
	KeyPlaylistTracks = "msxbridge:cache:playlist_tracks:" // + item_id
	KeySearch         = "msxbridge:cache:search:"          // + query:limit
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	ListingTTL time.Duration
	TracksTTL  time.Duration
	SearchTTL  time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ListingTTL:     DefaultListingTTL,
		TracksTTL:      DefaultTracksTTL,
		SearchTTL:      DefaultSearchTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

func pageKey(prefix string, limit, offset int) string {
	return fmt.Sprintf("%s%d:%d", prefix, limit, offset)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "msxbridge:cache:*")
}

// Library is a read-through caching decorator over the host library. Misses
// fall through to the upstream; cache failures never fail a request.
type Library struct {
	upstream mahost.Library
	cache    *Cache
}

var _ mahost.Library = (*Library)(nil)

// NewLibrary wraps a host library with the cache.
func NewLibrary(upstream mahost.Library, cache *Cache) *Library {
	return &Library{upstream: upstream, cache: cache}
}

// Albums lists library albums, served from cache when fresh.
func (l *Library) Albums(ctx context.Context, limit, offset int) ([]mahost.Album, error) {
	key := pageKey(KeyAlbums, limit, offset)
	var albums []mahost.Album
	if found, _ := l.cache.get(ctx, key, &albums); found {
		return albums, nil
	}
	albums, err := l.upstream.Albums(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	_ = l.cache.set(ctx, key, albums, l.cache.config.ListingTTL)
	return albums, nil
}

// AlbumTracks lists an album's tracks, served from cache when fresh.
func (l *Library) AlbumTracks(ctx context.Context, itemID, provider string) ([]mahost.Track, error) {
	key := KeyAlbumTracks + itemID
	var tracks []mahost.Track
	if found, _ := l.cache.get(ctx, key, &tracks); found {
		return tracks, nil
	}
	tracks, err := l.upstream.AlbumTracks(ctx, itemID, provider)
	if err != nil {
		return nil, err
	}
	_ = l.cache.set(ctx, key, tracks, l.cache.config.TracksTTL)
	return tracks, nil
}

// Artists lists library artists, served from cache when fresh.
func (l *Library) Artists(ctx context.Context, limit, offset int) ([]mahost.Artist, error) {
	key := pageKey(KeyArtists, limit, offset)
	var artists []mahost.Artist
	if found, _ := l.cache.get(ctx, key, &artists); found {
		return artists, nil
	}
	artists, err := l.upstream.Artists(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	_ = l.cache.set(ctx, key, artists, l.cache.config.ListingTTL)
	return artists, nil
}

// ArtistAlbums lists an artist's albums, served from cache when fresh.
func (l *Library) ArtistAlbums(ctx context.Context, itemID string) ([]mahost.Album, error) {
	key := KeyArtistAlbums + itemID
	var albums []mahost.Album
	if found, _ := l.cache.get(ctx, key, &albums); found {
		return albums, nil
	}
	albums, err := l.upstream.ArtistAlbums(ctx, itemID)
	if err != nil {
		return nil, err
	}
	_ = l.cache.set(ctx, key, albums, l.cache.config.ListingTTL)
	return albums, nil
}

// Playlists lists library playlists, served from cache when fresh.
func (l *Library) Playlists(ctx context.Context, limit, offset int) ([]mahost.Playlist, error) {
	key := pageKey(KeyPlaylists, limit, offset)
	var playlists []mahost.Playlist
	if found, _ := l.cache.get(ctx, key, &playlists); found {
		return playlists, nil
	}
	playlists, err := l.upstream.Playlists(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	_ = l.cache.set(ctx, key, playlists, l.cache.config.ListingTTL)
	return playlists, nil
}

// PlaylistTracks lists a playlist's tracks. Playlist contents change more
// often than album contents, so these use the listing TTL.
func (l *Library) PlaylistTracks(ctx context.Context, itemID string) ([]mahost.Track, error) {
	key := KeyPlaylistTracks + itemID
	var tracks []mahost.Track
	if found, _ := l.cache.get(ctx, key, &tracks); found {
		return tracks, nil
	}
	tracks, err := l.upstream.PlaylistTracks(ctx, itemID)
	if err != nil {
		return nil, err
	}
	_ = l.cache.set(ctx, key, tracks, l.cache.config.ListingTTL)
	return tracks, nil
}

// Tracks lists library tracks, served from cache when fresh.
func (l *Library) Tracks(ctx context.Context, limit, offset int) ([]mahost.Track, error) {
	key := pageKey(KeyTracks, limit, offset)
	var tracks []mahost.Track
	if found, _ := l.cache.get(ctx, key, &tracks); found {
		return tracks, nil
	}
	tracks, err := l.upstream.Tracks(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	_ = l.cache.set(ctx, key, tracks, l.cache.config.ListingTTL)
	return tracks, nil
}

// RecentlyPlayed always hits the host; the listing is stale the moment
// another track starts.
func (l *Library) RecentlyPlayed(ctx context.Context, limit int) ([]mahost.Track, error) {
	return l.upstream.RecentlyPlayed(ctx, limit)
}

// Search caches results briefly; the TV fires a request per keystroke on
// some remotes.
func (l *Library) Search(ctx context.Context, query string, limit int) (*mahost.SearchResults, error) {
	key := fmt.Sprintf("%s%s:%d", KeySearch, query, limit)
	var results mahost.SearchResults
	if found, _ := l.cache.get(ctx, key, &results); found {
		return &results, nil
	}
	out, err := l.upstream.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	_ = l.cache.set(ctx, key, out, l.cache.config.SearchTTL)
	return out, nil
}
