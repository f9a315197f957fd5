package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/denlab/denmusic/internal/config"
)

type envConfig struct {
	Env                  string `env:"ENV" envDefault:"production"`
	DiscordTokens        string `env:"DISCORD_TOKENS,required"`
	DiscordGuildID       string `env:"DISCORD_GUILD_ID,required"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	YouTubeAPIKey        string `env:"YOUTUBE_API_KEY"`
	EmptyChannelGraceSec int    `env:"EMPTY_CHANNEL_GRACE_SEC" envDefault:"60"`
	HandoffTimeoutSec    int    `env:"HANDOFF_TIMEOUT_SEC" envDefault:"10"`
	DefaultVolume        int    `env:"DEFAULT_VOLUME" envDefault:"80"`
	DefaultAutoplay      bool   `env:"DEFAULT_AUTOPLAY" envDefault:"true"`
	HTTPPort             int    `env:"HTTP_PORT" envDefault:"3000"`
	LifecycleWebhookURL  string `env:"LIFECYCLE_WEBHOOK_URL"`
	EventBufferSize      int    `env:"EVENT_BUFFER_SIZE" envDefault:"256"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		DiscordTokens:        splitTokens(raw.DiscordTokens),
		DiscordGuildID:       raw.DiscordGuildID,
		DatabaseURL:          raw.DatabaseURL,
		YouTubeAPIKey:        raw.YouTubeAPIKey,
		EmptyChannelGraceSec: raw.EmptyChannelGraceSec,
		HandoffTimeoutSec:    raw.HandoffTimeoutSec,
		DefaultVolume:        raw.DefaultVolume,
		DefaultAutoplay:      raw.DefaultAutoplay,
		HTTPPort:             raw.HTTPPort,
		LifecycleWebhookURL:  raw.LifecycleWebhookURL,
		EventBufferSize:      raw.EventBufferSize,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitTokens(raw string) []string {
	parts := strings.Split(raw, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}
