package player

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotServing       = errors.New("nothing is playing in this channel")
	ErrEmptyQueue       = errors.New("the queue is empty")
	ErrVolumeOutOfRange = errors.New("volume must be between 0 and 200")
)

type Track struct {
	ID          string
	Title       string
	Artist      string
	URL         string
	Duration    time.Duration
	RequestedBy string
}

type QueueSnapshot struct {
	Current  *Track
	Upcoming []Track
	Volume   int
	Autoplay bool
	Paused   bool
}

// Engine is the playback collaborator. The coordination core only ever
// calls StopServing; the command surface drives the rest. Queue state is
// keyed by guild since an agent serves one voice channel per guild.
type Engine interface {
	Enqueue(ctx context.Context, guildID, channelID, agentID string, track Track) (position int, err error)
	Skip(guildID string) (*Track, error)
	Pause(guildID string) error
	Resume(guildID string) error
	SetVolume(ctx context.Context, guildID string, percent int) error
	SetAutoplay(ctx context.Context, guildID string, enabled bool) (bool, error)
	Snapshot(guildID string) (QueueSnapshot, error)
	Stop(guildID string) error
	StopServing(guildID, channelID string) error
}
