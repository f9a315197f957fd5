package repository

import (
	"context"
	"time"

	"github.com/denlab/denmusic/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateServeSession(ctx context.Context, input repository.CreateServeSessionInput) (*repository.ServeSession, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO serve_sessions (guild_id, channel_id, agent_id, started_at, status)
		 VALUES ($1, $2, $3, $4, 'running')
		 RETURNING id, guild_id, channel_id, agent_id, started_at, ended_at, status, stop_reason, tracks_played, created_at`,
		input.GuildID, input.ChannelID, input.AgentID, input.StartedAt)
	return scanServeSession(row)
}

func (r *PostgresRepository) CompleteServeSession(ctx context.Context, input repository.CompleteServeSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE serve_sessions
		 SET status = 'completed', ended_at = $2, stop_reason = $3, tracks_played = $4
		 WHERE id = $1`,
		input.SessionID, input.EndedAt, input.StopReason, input.TracksPlayed)
	return err
}

func (r *PostgresRepository) GetRunningServeSessionByChannel(ctx context.Context, guildID, channelID string) (*repository.ServeSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, guild_id, channel_id, agent_id, started_at, ended_at, status, stop_reason, tracks_played, created_at
		 FROM serve_sessions WHERE guild_id = $1 AND channel_id = $2 AND status = 'running'
		 LIMIT 1`,
		guildID, channelID)
	s, err := scanServeSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) ListRecentServeSessions(ctx context.Context, limit int) ([]repository.ServeSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, guild_id, channel_id, agent_id, started_at, ended_at, status, stop_reason, tracks_played, created_at
		 FROM serve_sessions ORDER BY started_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.ServeSession
	for rows.Next() {
		s, err := scanServeSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) GetGuildSettings(ctx context.Context, guildID string) (*repository.GuildSettings, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT guild_id, volume, autoplay FROM guild_settings WHERE guild_id = $1`,
		guildID)
	var s repository.GuildSettings
	if err := row.Scan(&s.GuildID, &s.Volume, &s.Autoplay); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) UpsertGuildSettings(ctx context.Context, settings repository.GuildSettings) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO guild_settings (guild_id, volume, autoplay, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (guild_id) DO UPDATE SET volume = $2, autoplay = $3, updated_at = NOW()`,
		settings.GuildID, settings.Volume, settings.Autoplay)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServeSession(row rowScanner) (*repository.ServeSession, error) {
	var s repository.ServeSession
	var endedAt *time.Time
	err := row.Scan(&s.ID, &s.GuildID, &s.ChannelID, &s.AgentID, &s.StartedAt, &endedAt, &s.Status, &s.StopReason, &s.TracksPlayed, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.EndedAt = endedAt
	return &s, nil
}
