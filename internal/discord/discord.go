package discord

import "context"

type SlashCommandOption struct {
	Name        string
	Description string
	Required    bool
	Integer     bool
}

type SlashCommandDefinition struct {
	Name        string
	Description string
	Options     []SlashCommandOption
}

type InteractionEvent struct {
	GuildID          string
	ChannelID        string
	CommandName      string
	UserID           string
	Options          map[string]string
	RespondEphemeral func(content string) error
}

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type VoiceParticipant struct {
	UserID string
	IsBot  bool
}

// Agent is the live handle for one bot identity. One instance exists per
// configured token; the coordination layer issues join/leave commands through
// it and never touches the underlying gateway session directly.
type Agent interface {
	ID() string
	Connect(ctx context.Context) error
	Close() error
	BotUserID() (string, error)
	Join(ctx context.Context, guildID, channelID string) error
	Leave(guildID string) error
	IsConnectedTo(guildID, channelID string) bool
	GetUserVoiceChannelID(guildID, userID string) (string, error)
	ListVoiceParticipants(guildID, channelID string) ([]VoiceParticipant, error)
	SendChannelMessage(channelID, content string) error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterInteractionHandler(handler func(InteractionEvent))
	RegisterConnectionHandlers(onReady, onDisconnect, onResumed func())
	UpsertGuildSlashCommands(guildID string, defs []SlashCommandDefinition) error
	SetIdlePresence() error
	SetListeningPresence(trackTitle string) error
}
