package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/denlab/denmusic/internal/discord"
)

type Agent struct {
	id        string
	token     string
	session   *discordgo.Session
	botUserID string

	mu     sync.Mutex
	voices map[string]*discordgo.VoiceConnection
}

func NewAgent(id, token string) discordpkg.Agent {
	return &Agent{
		id:     id,
		token:  token,
		voices: make(map[string]*discordgo.VoiceConnection),
	}
}

func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) Connect(ctx context.Context) error {
	_ = ctx
	s, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return err
	}
	a.session = s
	s.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMessages)
	s.State.TrackVoice = true
	if err := s.Open(); err != nil {
		return err
	}
	userID, err := a.BotUserID()
	if err != nil {
		return err
	}
	a.botUserID = userID
	return nil
}

func (a *Agent) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func (a *Agent) BotUserID() (string, error) {
	if a.botUserID != "" {
		return a.botUserID, nil
	}
	if a.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if a.session.State != nil && a.session.State.User != nil && a.session.State.User.ID != "" {
		a.botUserID = a.session.State.User.ID
		return a.botUserID, nil
	}
	u, err := a.session.User("@me")
	if err != nil {
		return "", err
	}
	a.botUserID = u.ID
	return a.botUserID, nil
}

// Join connects the agent to a voice channel. ChannelVoiceJoin blocks until
// the voice handshake completes, so it runs on its own goroutine and the
// caller's context enforces the hand-off deadline.
func (a *Agent) Join(ctx context.Context, guildID, channelID string) error {
	if a.session == nil {
		return fmt.Errorf("discord session is not initialized")
	}

	type joinResult struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	resultCh := make(chan joinResult, 1)
	go func() {
		vc, err := a.session.ChannelVoiceJoin(guildID, channelID, false, true)
		resultCh <- joinResult{vc: vc, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			// Reap the late connection so a timed-out join does not leave
			// the agent parked in the channel.
			res := <-resultCh
			if res.err == nil && res.vc != nil {
				_ = res.vc.Disconnect()
			}
		}()
		return ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return res.err
		}
		a.mu.Lock()
		a.voices[guildID] = res.vc
		a.mu.Unlock()
		return nil
	}
}

func (a *Agent) Leave(guildID string) error {
	a.mu.Lock()
	vc := a.voices[guildID]
	delete(a.voices, guildID)
	a.mu.Unlock()
	if vc == nil {
		return nil
	}
	return vc.Disconnect()
}

func (a *Agent) IsConnectedTo(guildID, channelID string) bool {
	a.mu.Lock()
	vc := a.voices[guildID]
	a.mu.Unlock()
	if vc == nil {
		return false
	}
	return vc.ChannelID == channelID
}

func (a *Agent) GetUserVoiceChannelID(guildID, userID string) (string, error) {
	if a.session == nil {
		return "", nil
	}
	if a.session.State != nil {
		vs, err := a.session.State.VoiceState(guildID, userID)
		if err == nil && vs != nil {
			return vs.ChannelID, nil
		}
		guild, err := a.session.State.Guild(guildID)
		if err == nil && guild != nil {
			for _, state := range guild.VoiceStates {
				if state != nil && state.UserID == userID {
					return state.ChannelID, nil
				}
			}
		}
	}

	// Cache may be cold right after startup; ask the API directly as fallback.
	vs, err := a.session.UserVoiceState(guildID, userID)
	if err != nil {
		if isRESTNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if vs == nil {
		return "", nil
	}
	return vs.ChannelID, nil
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

func (a *Agent) ListVoiceParticipants(guildID, channelID string) ([]discordpkg.VoiceParticipant, error) {
	if a.session == nil || a.session.State == nil {
		return nil, nil
	}
	guild, err := a.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil, nil
	}
	participants := make([]discordpkg.VoiceParticipant, 0)
	seen := make(map[string]struct{})
	for _, state := range guild.VoiceStates {
		if state == nil || state.ChannelID != channelID || state.UserID == "" {
			continue
		}
		if _, exists := seen[state.UserID]; exists {
			continue
		}
		seen[state.UserID] = struct{}{}
		participants = append(participants, discordpkg.VoiceParticipant{
			UserID: state.UserID,
			IsBot:  a.resolveUserIsBot(guildID, state.UserID, state),
		})
	}
	return participants, nil
}

func (a *Agent) SendChannelMessage(channelID, content string) error {
	_, err := a.session.ChannelMessageSend(channelID, content)
	return err
}

func (a *Agent) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	a.session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if vs == nil {
			return
		}
		beforeChannelID := ""
		if vs.BeforeUpdate != nil {
			beforeChannelID = vs.BeforeUpdate.ChannelID
		}
		afterChannelID := vs.ChannelID
		if beforeChannelID == afterChannelID && beforeChannelID != "" {
			return
		}
		if vs.GuildID == "" || vs.UserID == "" {
			return
		}
		handler(discordpkg.VoiceStateEvent{
			GuildID:         vs.GuildID,
			UserID:          vs.UserID,
			UserIsBot:       a.resolveUserIsBot(vs.GuildID, vs.UserID, vs.VoiceState),
			BeforeChannelID: beforeChannelID,
			AfterChannelID:  afterChannelID,
		})
	})
}

func (a *Agent) RegisterInteractionHandler(handler func(discordpkg.InteractionEvent)) {
	a.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		data := ic.ApplicationCommandData()
		if data.Name == "" {
			return
		}
		userID := ""
		if ic.Member != nil && ic.Member.User != nil {
			userID = ic.Member.User.ID
		}
		if userID == "" && ic.User != nil {
			userID = ic.User.ID
		}
		if userID == "" {
			return
		}
		options := make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			if opt == nil {
				continue
			}
			switch opt.Type {
			case discordgo.ApplicationCommandOptionInteger:
				options[opt.Name] = fmt.Sprintf("%d", opt.IntValue())
			default:
				options[opt.Name] = opt.StringValue()
			}
		}
		slog.Info("slash command interaction received", "agent_id", a.id, "guild_id", ic.GuildID, "channel_id", ic.ChannelID, "command", data.Name, "user_id", userID)
		handler(discordpkg.InteractionEvent{
			GuildID:     ic.GuildID,
			ChannelID:   ic.ChannelID,
			CommandName: data.Name,
			UserID:      userID,
			Options:     options,
			RespondEphemeral: func(content string) error {
				return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Content: content,
						Flags:   discordgo.MessageFlagsEphemeral,
					},
				})
			},
		})
	})
}

func (a *Agent) RegisterConnectionHandlers(onReady, onDisconnect, onResumed func()) {
	a.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		onReady()
	})
	a.session.AddHandler(func(s *discordgo.Session, d *discordgo.Disconnect) {
		onDisconnect()
	})
	a.session.AddHandler(func(s *discordgo.Session, r *discordgo.Resumed) {
		onResumed()
	})
}

func (a *Agent) UpsertGuildSlashCommands(guildID string, defs []discordpkg.SlashCommandDefinition) error {
	appID := a.applicationID()
	if appID == "" {
		return fmt.Errorf("discord application id is not available")
	}
	existing, err := a.session.ApplicationCommands(appID, guildID)
	if err != nil {
		return err
	}
	existingByName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		if cmd == nil || cmd.Name == "" {
			continue
		}
		existingByName[cmd.Name] = cmd
	}
	for _, def := range defs {
		if err := a.upsertGuildSlashCommand(appID, guildID, def, existingByName); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) upsertGuildSlashCommand(appID, guildID string, def discordpkg.SlashCommandDefinition, existingByName map[string]*discordgo.ApplicationCommand) error {
	if def.Name == "" {
		return nil
	}
	payload := &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: def.Description,
		Options:     commandOptions(def.Options),
	}
	cmd, ok := existingByName[def.Name]
	if !ok {
		_, err := a.session.ApplicationCommandCreate(appID, guildID, payload)
		return err
	}
	if cmd.Description == def.Description && len(cmd.Options) == len(payload.Options) {
		return nil
	}
	_, err := a.session.ApplicationCommandEdit(appID, guildID, cmd.ID, payload)
	return err
}

func commandOptions(opts []discordpkg.SlashCommandOption) []*discordgo.ApplicationCommandOption {
	out := make([]*discordgo.ApplicationCommandOption, 0, len(opts))
	for _, opt := range opts {
		optType := discordgo.ApplicationCommandOptionString
		if opt.Integer {
			optType = discordgo.ApplicationCommandOptionInteger
		}
		out = append(out, &discordgo.ApplicationCommandOption{
			Type:        optType,
			Name:        opt.Name,
			Description: opt.Description,
			Required:    opt.Required,
		})
	}
	return out
}

func (a *Agent) SetIdlePresence() error {
	if a.session == nil {
		return nil
	}
	return a.session.UpdateListeningStatus("")
}

func (a *Agent) SetListeningPresence(trackTitle string) error {
	if a.session == nil {
		return nil
	}
	return a.session.UpdateListeningStatus(trackTitle)
}

func (a *Agent) resolveUserIsBot(guildID, userID string, state *discordgo.VoiceState) bool {
	if isBot, ok := botFlagFromVoiceState(state); ok {
		return isBot
	}
	if isBot, ok := a.botFlagFromSessionState(guildID, userID); ok {
		return isBot
	}
	return a.botFlagFromUserAPI(userID)
}

func botFlagFromVoiceState(state *discordgo.VoiceState) (bool, bool) {
	if state != nil && state.Member != nil && state.Member.User != nil {
		return state.Member.User.Bot, true
	}
	return false, false
}

func (a *Agent) botFlagFromSessionState(guildID, userID string) (bool, bool) {
	if a.session == nil || a.session.State == nil {
		return false, false
	}
	if a.session.State.User != nil && a.session.State.User.ID == userID {
		return true, true
	}
	member, err := a.session.State.Member(guildID, userID)
	if err == nil && member != nil && member.User != nil {
		return member.User.Bot, true
	}
	return false, false
}

func (a *Agent) botFlagFromUserAPI(userID string) bool {
	u, err := a.session.User(userID)
	if err != nil {
		return false
	}
	return u.Bot
}

func (a *Agent) applicationID() string {
	if a.session == nil || a.session.State == nil {
		return ""
	}
	if a.session.State.Application != nil && a.session.State.Application.ID != "" {
		return a.session.State.Application.ID
	}
	if a.session.State.User != nil {
		return a.session.State.User.ID
	}
	return ""
}
