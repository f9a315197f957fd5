package command

import "github.com/denlab/denmusic/internal/discord"

const (
	commandPlay       = "play"
	commandSkip       = "skip"
	commandStop       = "stop"
	commandPause      = "pause"
	commandResume     = "resume"
	commandVolume     = "volume"
	commandQueue      = "queue"
	commandAutoplay   = "autoplay"
	commandDisconnect = "disconnect"
	commandStats      = "stats"
	commandHelp       = "help"

	optionQuery   = "query"
	optionPercent = "percent"
)

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{
			Name:        commandPlay,
			Description: "Play a song or add it to the queue",
			Options: []discord.SlashCommandOption{
				{Name: optionQuery, Description: "Song name, YouTube link, or search query", Required: true},
			},
		},
		{Name: commandSkip, Description: "Skip the current track"},
		{Name: commandStop, Description: "Stop playback and clear the queue"},
		{Name: commandPause, Description: "Pause playback"},
		{Name: commandResume, Description: "Resume playback"},
		{
			Name:        commandVolume,
			Description: "Set the playback volume",
			Options: []discord.SlashCommandOption{
				{Name: optionPercent, Description: "Volume percentage (0-200)", Required: true, Integer: true},
			},
		},
		{Name: commandQueue, Description: "Show the current queue"},
		{Name: commandAutoplay, Description: "Toggle autoplay of related tracks"},
		{Name: commandDisconnect, Description: "Disconnect the bot from your voice channel"},
		{Name: commandStats, Description: "Show bot usage statistics and fleet health"},
		{Name: commandHelp, Description: "Show all commands"},
	}
}
