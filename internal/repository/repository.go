package repository

import (
	"context"
	"time"
)

type CreateServeSessionInput struct {
	GuildID   string
	ChannelID string
	AgentID   string
	StartedAt time.Time
}

type CompleteServeSessionInput struct {
	SessionID    string
	EndedAt      time.Time
	StopReason   string
	TracksPlayed int
}

type ServeHistoryRepository interface {
	CreateServeSession(ctx context.Context, input CreateServeSessionInput) (*ServeSession, error)
	CompleteServeSession(ctx context.Context, input CompleteServeSessionInput) error
	GetRunningServeSessionByChannel(ctx context.Context, guildID, channelID string) (*ServeSession, error)
	ListRecentServeSessions(ctx context.Context, limit int) ([]ServeSession, error)
}

type SettingsRepository interface {
	// GetGuildSettings returns nil when the guild has no stored settings.
	GetGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error)
	UpsertGuildSettings(ctx context.Context, settings GuildSettings) error
}

type Repository interface {
	ServeHistoryRepository
	SettingsRepository
}
