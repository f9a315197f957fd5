package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Env                  string
	DiscordTokens        []string
	DiscordGuildID       string
	DatabaseURL          string
	YouTubeAPIKey        string
	EmptyChannelGraceSec int
	HandoffTimeoutSec    int
	DefaultVolume        int
	DefaultAutoplay      bool
	HTTPPort             int
	LifecycleWebhookURL  string
	EventBufferSize      int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if len(c.DiscordTokens) == 0 {
		return fmt.Errorf("DISCORD_TOKENS must contain at least one token")
	}
	for i, token := range c.DiscordTokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("DISCORD_TOKENS entry %d is empty", i+1)
		}
	}
	if c.EmptyChannelGraceSec <= 0 {
		return fmt.Errorf("EMPTY_CHANNEL_GRACE_SEC must be positive, got %d", c.EmptyChannelGraceSec)
	}
	if c.HandoffTimeoutSec <= 0 {
		return fmt.Errorf("HANDOFF_TIMEOUT_SEC must be positive, got %d", c.HandoffTimeoutSec)
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 200 {
		return fmt.Errorf("DEFAULT_VOLUME must be between 0 and 200, got %d", c.DefaultVolume)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be a valid port, got %d", c.HTTPPort)
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be positive, got %d", c.EventBufferSize)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "DATABASE_URL", value: c.DatabaseURL},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) EmptyChannelGrace() time.Duration {
	return time.Duration(c.EmptyChannelGraceSec) * time.Second
}

func (c *Config) HandoffTimeout() time.Duration {
	return time.Duration(c.HandoffTimeoutSec) * time.Second
}
