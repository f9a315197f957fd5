package command

import "fmt"

const (
	messageEphemeralWrongGuild        = ":warning: **This command can't be used in this server.**"
	messageEphemeralUnknownCommand    = ":warning: **Unknown command.**"
	messageEphemeralVoiceLookupFailed = ":warning: **Couldn't check your voice channel. Please try again.**"
	messageEphemeralJoinVCFirst       = ":warning: **Join a voice channel first.**"
	messageEphemeralNotServing        = ":warning: **Nothing is playing in your voice channel.**"
	messageEphemeralNoResults         = ":warning: **No results found. Try a different search or a YouTube link.**"
	messageEphemeralHandOffFailed     = ":warning: **Couldn't bring a bot into your channel. Please try again.**"
	messageEphemeralEnqueueFailed     = ":warning: **Couldn't queue that track. Please try again.**"
	messageEphemeralVolumeMissing     = ":warning: **Give a volume between 0 and 200.**"
	messageEphemeralCommandFailed     = ":warning: **Something went wrong. Please try again.**"

	messageEphemeralPaused       = ":pause_button: **Playback paused.**"
	messageEphemeralResumed      = ":arrow_forward: **Playback resumed.**"
	messageEphemeralStopped      = ":stop_button: **Playback stopped and queue cleared.**"
	messageEphemeralDisconnected = ":wave: **Disconnected and released the bot.**"
	messageEphemeralQueueEmpty   = ":mailbox_with_no_mail: **The queue is empty.**"

	messageHelp = ":notes: **Den Music commands**\n" +
		"`/play <query>` — play a song or add it to the queue\n" +
		"`/skip` — skip the current track\n" +
		"`/pause` `/resume` — pause or resume playback\n" +
		"`/stop` — stop playback and clear the queue\n" +
		"`/volume <percent>` — set the volume (0–200)\n" +
		"`/queue` — show the current queue\n" +
		"`/autoplay` — toggle autoplay of related tracks\n" +
		"`/disconnect` — disconnect the bot from your channel\n" +
		"`/stats` — bot fleet status"
)

func allBusyMessage(total int) string {
	return fmt.Sprintf(":warning: **All %d bots are busy right now. Please try again later.**", total)
}

func nowPlayingReply(title, channelID string) string {
	return fmt.Sprintf(":musical_note: **%s** is playing in <#%s>.", title, channelID)
}

func queuedReply(title string, position int) string {
	return fmt.Sprintf(":notes: **%s** queued at position %d.", title, position)
}

func skippedReply(title string) string {
	return fmt.Sprintf(":track_next: Skipped **%s**.", title)
}

func volumeReply(percent int) string {
	return fmt.Sprintf(":loud_sound: **Volume set to %d%%.**", percent)
}

func autoplayReply(enabled bool) string {
	if enabled {
		return ":repeat: **Autoplay is now on.**"
	}
	return ":repeat_one: **Autoplay is now off.**"
}
