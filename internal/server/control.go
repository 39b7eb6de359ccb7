/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"time"

	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/notify"
	"github.com/friendsincode/msx_bridge/internal/player"
)

const nowPlayingPollInterval = 5 * time.Second

// playMedia enqueues uri on the player's host queue and pushes a play
// command. With grouping enabled the command fans out to group members;
// visited guards against membership cycles.
func (s *Server) playMedia(ctx context.Context, p *player.Player, uri string, visited map[identity.Key]bool) error {
	if visited == nil {
		visited = map[identity.Key]bool{}
	}
	if visited[p.Key] {
		return nil
	}
	visited[p.Key] = true

	if p.Disabled() {
		return nil
	}
	if err := s.host.PlayMedia(ctx, string(p.Key), uri); err != nil {
		return err
	}
	p.Touch()

	media, err := s.pipeline.WaitForMedia(ctx, string(p.Key))
	if err != nil {
		s.logger.Warn().Err(err).Str("player_key", string(p.Key)).Msg("Media not ready after enqueue")
	} else {
		p.SetPlaying(media)
	}
	s.pushPlay(p)

	s.propagate(ctx, p, visited, func(ctx context.Context, member *player.Player) error {
		return s.playMedia(ctx, member, uri, visited)
	})
	return nil
}

// pushPlay sends the play message for the player's current media.
func (s *Server) pushPlay(p *player.Player) {
	media := p.Media()
	msg := notify.PlayMessage{
		Path:       "/msx/audio/" + string(p.Key) + ".mp3",
		NextAction: "content:request:interaction:next",
		PrevAction: "content:request:interaction:previous",
	}
	if media != nil {
		msg.Title = media.Title
		msg.Artist = media.Artist
		msg.ImageURL = media.ImageURL
		msg.Duration = media.Duration
	}
	s.notifier.NotifyPlay(p.Key, msg)
}

// pause snapshots elapsed time, pauses the host queue and stops the TV's
// player panel. The queue position survives, so resume picks up here.
func (s *Server) pause(ctx context.Context, p *player.Player, visited map[identity.Key]bool) error {
	if visited == nil {
		visited = map[identity.Key]bool{}
	}
	if visited[p.Key] {
		return nil
	}
	visited[p.Key] = true

	if err := s.host.Pause(ctx, string(p.Key)); err != nil {
		return err
	}
	p.SetPaused()
	p.Touch()
	s.notifier.NotifyStop(p.Key)

	s.propagate(ctx, p, visited, func(ctx context.Context, member *player.Player) error {
		return s.pause(ctx, member, visited)
	})
	return nil
}

// resume asks the host to continue the paused queue and re-pushes play.
func (s *Server) resume(ctx context.Context, p *player.Player, visited map[identity.Key]bool) error {
	if visited == nil {
		visited = map[identity.Key]bool{}
	}
	if visited[p.Key] {
		return nil
	}
	visited[p.Key] = true

	if err := s.host.Resume(ctx, string(p.Key)); err != nil {
		return err
	}
	if media, err := s.pipeline.WaitForMedia(ctx, string(p.Key)); err == nil {
		p.SetPlaying(media)
	}
	p.Touch()
	s.pushPlay(p)

	s.propagate(ctx, p, visited, func(ctx context.Context, member *player.Player) error {
		return s.resume(ctx, member, visited)
	})
	return nil
}

// stop ends playback: host queue stopped, TV stopped, streams torn down.
func (s *Server) stop(ctx context.Context, p *player.Player, visited map[identity.Key]bool) error {
	if visited == nil {
		visited = map[identity.Key]bool{}
	}
	if visited[p.Key] {
		return nil
	}
	visited[p.Key] = true

	err := s.host.Stop(ctx, string(p.Key))
	p.SetIdle()
	p.Touch()
	s.notifier.NotifyStop(p.Key)

	s.propagate(ctx, p, visited, func(ctx context.Context, member *player.Player) error {
		return s.stop(ctx, member, visited)
	})
	return err
}

// quickStop tears everything down for a key without consulting the host,
// for TVs stuck with a dead socket or a wedged stream.
func (s *Server) quickStop(key identity.Key) {
	s.notifier.NotifyStop(key)
	if p := s.directory.Get(key); p != nil {
		p.SetIdle()
		p.Touch()
	}
}

// next advances the host queue; the TV learns about the new track through
// the play push once the host settles.
func (s *Server) next(ctx context.Context, p *player.Player) error {
	if err := s.host.Next(ctx, string(p.Key)); err != nil {
		return err
	}
	p.Touch()
	s.refreshNowPlaying(ctx, p)
	return nil
}

func (s *Server) previous(ctx context.Context, p *player.Player) error {
	if err := s.host.Previous(ctx, string(p.Key)); err != nil {
		return err
	}
	p.Touch()
	s.refreshNowPlaying(ctx, p)
	return nil
}

// refreshNowPlaying reconciles the player with the host queue and pushes
// the appropriate update to the TV.
func (s *Server) refreshNowPlaying(ctx context.Context, p *player.Player) {
	media, err := s.pipeline.WaitForMedia(ctx, string(p.Key))
	if err != nil {
		return
	}
	prev := p.Media()
	p.SetPlaying(media)
	if queueID, _, _, fromQueue := p.QueuePlaylist(); fromQueue && queueID != "" {
		// Native playlist on the TV: move its cursor instead of
		// restarting the player panel.
		s.notifier.NotifyGotoIndex(p.Key, p.TranslateQueueIndex(media.QueueIndex), true)
		return
	}
	if prev != nil && prev.QueueItemID == media.QueueItemID {
		return
	}
	s.notifier.NotifyPlayUpdate(p.Key, notify.PlayMessage{
		Path:     "/msx/audio/" + string(p.Key) + ".mp3",
		Title:    media.Title,
		Artist:   media.Artist,
		ImageURL: media.ImageURL,
		Duration: media.Duration,
	})
}

// propagate applies fn to each group member when grouping is on.
func (s *Server) propagate(ctx context.Context, p *player.Player, visited map[identity.Key]bool, fn func(context.Context, *player.Player) error) {
	if !s.cfg.GroupingEnabled {
		return
	}
	for _, key := range p.GroupMembers() {
		if visited[key] {
			continue
		}
		member := s.directory.Get(key)
		if member == nil || member.Disabled() {
			visited[key] = true
			continue
		}
		if err := fn(ctx, member); err != nil {
			s.logger.Warn().Err(err).
				Str("player_key", string(p.Key)).
				Str("member_key", string(key)).
				Msg("Group propagation failed")
		}
	}
}

// runNowPlayingPoller watches playing players for host-side queue advances
// (track finished, somebody else skipped) and pushes updates.
func (s *Server) runNowPlayingPoller(ctx context.Context) {
	ticker := time.NewTicker(nowPlayingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range s.directory.List() {
				if p.State() != player.StatePlaying || p.Disabled() {
					continue
				}
				media, err := s.host.NowPlaying(ctx, string(p.Key))
				if err != nil || media == nil {
					continue
				}
				prev := p.Media()
				if prev != nil && prev.QueueItemID == media.QueueItemID {
					p.AdvanceElapsed()
					continue
				}
				s.refreshNowPlaying(ctx, p)
			}
		}
	}
}
