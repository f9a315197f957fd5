package repository

import "time"

type ServeStatus string

const (
	ServeStatusRunning   ServeStatus = "running"
	ServeStatusCompleted ServeStatus = "completed"
)

// ServeSession is one completed or in-flight serving of a voice channel by
// an agent. History rows are append-only reporting; coordination decisions
// never read them back.
type ServeSession struct {
	ID           string
	GuildID      string
	ChannelID    string
	AgentID      string
	StartedAt    time.Time
	EndedAt      *time.Time
	Status       ServeStatus
	StopReason   string
	TracksPlayed int
	CreatedAt    time.Time
}

type GuildSettings struct {
	GuildID  string
	Volume   int
	Autoplay bool
}
