package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/denlab/denmusic/internal/coord"
	"github.com/denlab/denmusic/internal/player"
	"github.com/denlab/denmusic/internal/repository"
	"github.com/denlab/denmusic/internal/resolver"
)

type guildQueue struct {
	guildID        string
	channelID      string
	agentID        string
	serveSessionID string
	current        *player.Track
	upcoming       []player.Track
	volume         int
	autoplay       bool
	paused         bool
	tracksPlayed   int
	advanceTimer   *time.Timer
	trackStartedAt time.Time
	trackRemaining time.Duration
}

// QueuePlayer is the playback collaborator: per-guild queues, volume and
// autoplay defaults persisted per guild, and track progression driven by
// duration timers. Media fetch and decoding live outside this system, so a
// track "plays" for its reported duration and then advances.
type QueuePlayer struct {
	registry        *coord.Registry
	repo            repository.Repository
	resolver        resolver.Resolver
	defaultVolume   int
	defaultAutoplay bool

	// openMu serializes queue creation so concurrent first enqueues for a
	// guild record exactly one serve session.
	openMu sync.Mutex

	mu     sync.Mutex
	queues map[string]*guildQueue
}

func NewQueuePlayer(registry *coord.Registry, repo repository.Repository, res resolver.Resolver, defaultVolume int, defaultAutoplay bool) *QueuePlayer {
	return &QueuePlayer{
		registry:        registry,
		repo:            repo,
		resolver:        res,
		defaultVolume:   defaultVolume,
		defaultAutoplay: defaultAutoplay,
		queues:          make(map[string]*guildQueue),
	}
}

func (p *QueuePlayer) Enqueue(ctx context.Context, guildID, channelID, agentID string, track player.Track) (int, error) {
	p.mu.Lock()
	q := p.queues[guildID]
	p.mu.Unlock()

	if q == nil {
		created, err := p.openQueue(ctx, guildID, channelID, agentID)
		if err != nil {
			return 0, err
		}
		q = created
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if q.current == nil {
		q.current = &track
		p.startTrackLocked(q)
		return 0, nil
	}
	q.upcoming = append(q.upcoming, track)
	return len(q.upcoming), nil
}

func (p *QueuePlayer) openQueue(ctx context.Context, guildID, channelID, agentID string) (*guildQueue, error) {
	p.openMu.Lock()
	defer p.openMu.Unlock()

	p.mu.Lock()
	if existing := p.queues[guildID]; existing != nil {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	volume, autoplay := p.defaultVolume, p.defaultAutoplay
	settings, err := p.repo.GetGuildSettings(ctx, guildID)
	if err != nil {
		slog.Warn("failed to load guild settings, using defaults", "guild_id", guildID, "error", err)
	} else if settings != nil {
		volume, autoplay = settings.Volume, settings.Autoplay
	}

	if orphan, err := p.repo.GetRunningServeSessionByChannel(ctx, guildID, channelID); err != nil {
		slog.Error("failed to query running serve session", "guild_id", guildID, "channel_id", channelID, "error", err)
	} else if orphan != nil {
		slog.Warn("found orphan running serve session, closing", "serve_session_id", orphan.ID, "guild_id", guildID, "channel_id", channelID)
		if err := p.repo.CompleteServeSession(ctx, repository.CompleteServeSessionInput{
			SessionID:  orphan.ID,
			EndedAt:    time.Now(),
			StopReason: "orphaned by restart",
		}); err != nil {
			slog.Error("failed to close orphan serve session", "serve_session_id", orphan.ID, "error", err)
		}
	}

	serveSessionID := ""
	created, err := p.repo.CreateServeSession(ctx, repository.CreateServeSessionInput{
		GuildID:   guildID,
		ChannelID: channelID,
		AgentID:   agentID,
		StartedAt: time.Now(),
	})
	if err != nil {
		slog.Error("failed to record serve session", "guild_id", guildID, "channel_id", channelID, "agent_id", agentID, "error", err)
	} else {
		serveSessionID = created.ID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	q := &guildQueue{
		guildID:        guildID,
		channelID:      channelID,
		agentID:        agentID,
		serveSessionID: serveSessionID,
		volume:         volume,
		autoplay:       autoplay,
	}
	p.queues[guildID] = q
	return q, nil
}

// startTrackLocked announces q.current and schedules the advance timer.
// Callers hold p.mu.
func (p *QueuePlayer) startTrackLocked(q *guildQueue) {
	track := q.current
	q.paused = false
	q.trackStartedAt = time.Now()
	q.trackRemaining = track.Duration
	if track.Duration > 0 {
		guildID := q.guildID
		q.advanceTimer = time.AfterFunc(track.Duration, func() {
			p.advance(guildID)
		})
	}
	slog.Info("track started", "guild_id", q.guildID, "channel_id", q.channelID, "agent_id", q.agentID, "title", track.Title, "duration", track.Duration)
	p.announceLocked(q, fmt.Sprintf(":musical_note: Now playing: **%s** %s", track.Title, formatDuration(track.Duration)))
	p.setPresenceLocked(q, track.Title)
}

func (p *QueuePlayer) advance(guildID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queues[guildID]
	if q == nil || q.current == nil {
		return
	}
	p.advanceLocked(q)
}

func (p *QueuePlayer) advanceLocked(q *guildQueue) {
	finished := *q.current
	q.tracksPlayed++
	p.stopTimerLocked(q)

	if len(q.upcoming) > 0 {
		next := q.upcoming[0]
		q.upcoming = q.upcoming[1:]
		q.current = &next
		p.startTrackLocked(q)
		return
	}

	if q.autoplay && p.resolver != nil {
		guildID := q.guildID
		go p.autoplayNext(guildID, finished)
		return
	}

	q.current = nil
	p.announceLocked(q, ":mailbox_with_no_mail: Queue finished.")
	p.setPresenceLocked(q, "")
}

// autoplayNext asks the resolver for a follow-up to the finished track and
// feeds it back in. Runs off the lock because the lookup is a network call.
func (p *QueuePlayer) autoplayNext(guildID string, finished player.Track) {
	next, err := p.resolver.Related(context.Background(), finished)

	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queues[guildID]
	if q == nil {
		return
	}
	if err != nil || next == nil {
		if err != nil && !errors.Is(err, resolver.ErrNoResults) {
			slog.Warn("autoplay suggestion failed", "guild_id", guildID, "error", err)
		}
		q.current = nil
		p.announceLocked(q, ":mailbox_with_no_mail: Queue finished.")
		p.setPresenceLocked(q, "")
		return
	}
	if q.current != nil {
		// A user enqueued something while the lookup was in flight.
		q.upcoming = append(q.upcoming, *next)
		return
	}
	q.current = next
	slog.Info("autoplay picked next track", "guild_id", guildID, "title", next.Title)
	p.startTrackLocked(q)
}

func (p *QueuePlayer) Skip(guildID string) (*player.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queues[guildID]
	if q == nil || q.current == nil {
		return nil, player.ErrNotServing
	}
	skipped := *q.current
	p.advanceLocked(q)
	return &skipped, nil
}

func (p *QueuePlayer) Pause(guildID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queues[guildID]
	if q == nil || q.current == nil {
		return player.ErrNotServing
	}
	if q.paused {
		return nil
	}
	q.paused = true
	elapsed := time.Since(q.trackStartedAt)
	if q.trackRemaining > elapsed {
		q.trackRemaining -= elapsed
	} else {
		q.trackRemaining = 0
	}
	p.stopTimerLocked(q)
	return nil
}

func (p *QueuePlayer) Resume(guildID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queues[guildID]
	if q == nil || q.current == nil {
		return player.ErrNotServing
	}
	if !q.paused {
		return nil
	}
	q.paused = false
	q.trackStartedAt = time.Now()
	if q.trackRemaining > 0 {
		guildID := q.guildID
		q.advanceTimer = time.AfterFunc(q.trackRemaining, func() {
			p.advance(guildID)
		})
	}
	return nil
}

func (p *QueuePlayer) SetVolume(ctx context.Context, guildID string, percent int) error {
	if percent < 0 || percent > 200 {
		return fmt.Errorf("%w, got %d", player.ErrVolumeOutOfRange, percent)
	}
	p.mu.Lock()
	q := p.queues[guildID]
	if q == nil {
		p.mu.Unlock()
		return player.ErrNotServing
	}
	q.volume = percent
	autoplay := q.autoplay
	p.mu.Unlock()

	return p.persistSettings(ctx, guildID, percent, autoplay)
}

func (p *QueuePlayer) SetAutoplay(ctx context.Context, guildID string, enabled bool) (bool, error) {
	p.mu.Lock()
	q := p.queues[guildID]
	if q == nil {
		p.mu.Unlock()
		return false, player.ErrNotServing
	}
	q.autoplay = enabled
	volume := q.volume
	p.mu.Unlock()

	return enabled, p.persistSettings(ctx, guildID, volume, enabled)
}

func (p *QueuePlayer) persistSettings(ctx context.Context, guildID string, volume int, autoplay bool) error {
	err := p.repo.UpsertGuildSettings(ctx, repository.GuildSettings{
		GuildID:  guildID,
		Volume:   volume,
		Autoplay: autoplay,
	})
	if err != nil {
		slog.Error("failed to persist guild settings", "guild_id", guildID, "error", err)
	}
	return err
}

func (p *QueuePlayer) Snapshot(guildID string) (player.QueueSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queues[guildID]
	if q == nil {
		return player.QueueSnapshot{}, player.ErrNotServing
	}
	snap := player.QueueSnapshot{
		Volume:   q.volume,
		Autoplay: q.autoplay,
		Paused:   q.paused,
		Upcoming: append([]player.Track(nil), q.upcoming...),
	}
	if q.current != nil {
		current := *q.current
		snap.Current = &current
	}
	return snap, nil
}

func (p *QueuePlayer) Stop(guildID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queues[guildID]
	if q == nil {
		return player.ErrNotServing
	}
	p.stopTimerLocked(q)
	q.current = nil
	q.upcoming = nil
	q.paused = false
	p.setPresenceLocked(q, "")
	return nil
}

// StopServing tears down the guild's queue and disconnects the serving
// agent from voice. Idempotent: vacating an already-vacated channel is a
// no-op.
func (p *QueuePlayer) StopServing(guildID, channelID string) error {
	p.mu.Lock()
	q := p.queues[guildID]
	if q == nil || q.channelID != channelID {
		p.mu.Unlock()
		return nil
	}
	delete(p.queues, guildID)
	p.stopTimerLocked(q)
	agentID := q.agentID
	serveSessionID := q.serveSessionID
	tracksPlayed := q.tracksPlayed
	if q.current != nil {
		tracksPlayed++
	}
	p.setPresenceLocked(q, "")
	p.mu.Unlock()

	if handle, ok := p.registry.Handle(agentID); ok {
		if err := handle.Leave(guildID); err != nil {
			slog.Warn("voice disconnect on vacate failed", "guild_id", guildID, "agent_id", agentID, "error", err)
		}
	}
	if serveSessionID != "" {
		go p.closeServeSession(serveSessionID, tracksPlayed)
	}
	slog.Info("stopped serving channel", "guild_id", guildID, "channel_id", channelID, "agent_id", agentID, "tracks_played", tracksPlayed)
	return nil
}

func (p *QueuePlayer) closeServeSession(serveSessionID string, tracksPlayed int) {
	err := p.repo.CompleteServeSession(context.Background(), repository.CompleteServeSessionInput{
		SessionID:    serveSessionID,
		EndedAt:      time.Now(),
		StopReason:   "serving stopped",
		TracksPlayed: tracksPlayed,
	})
	if err != nil {
		slog.Error("failed to complete serve session", "serve_session_id", serveSessionID, "error", err)
	}
}

func (p *QueuePlayer) stopTimerLocked(q *guildQueue) {
	if q.advanceTimer != nil {
		q.advanceTimer.Stop()
		q.advanceTimer = nil
	}
}

func (p *QueuePlayer) announceLocked(q *guildQueue, content string) {
	handle, ok := p.registry.Handle(q.agentID)
	if !ok {
		return
	}
	if err := handle.SendChannelMessage(q.channelID, content); err != nil {
		slog.Warn("failed to announce in channel", "guild_id", q.guildID, "channel_id", q.channelID, "error", err)
	}
}

func (p *QueuePlayer) setPresenceLocked(q *guildQueue, trackTitle string) {
	handle, ok := p.registry.Handle(q.agentID)
	if !ok {
		return
	}
	var err error
	if trackTitle == "" {
		err = handle.SetIdlePresence()
	} else {
		err = handle.SetListeningPresence(trackTitle)
	}
	if err != nil {
		slog.Debug("failed to update presence", "agent_id", q.agentID, "error", err)
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	total := int(d.Seconds())
	if total >= 3600 {
		return fmt.Sprintf("(%d:%02d:%02d)", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("(%d:%02d)", total/60, total%60)
}
