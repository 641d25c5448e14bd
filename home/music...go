package home

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/chorus/player"
	"github.com/leeineian/chorus/sys"
	"github.com/leeineian/chorus/track"
)

// Services are the long-lived components the music commands drive.
type Services struct {
	Player    *player.Manager
	Resolver  *track.Resolver
	Library   *track.Library
	Suggester *track.Suggester
}

var services atomic.Pointer[Services]

// Setup makes s available to the command handlers. Commands invoked before
// Setup reply with a generic failure.
func Setup(s *Services) {
	services.Store(s)
}

// Maximum autocomplete choices Discord accepts.
const maxChoices = 25

// commandTimeout bounds everything a single command does after deferring.
const commandTimeout = 45 * time.Second

var voicePerm = discord.PermissionConnect

// musicCommand is a guild-only slash command usable by members who may join
// voice channels.
func musicCommand(name, description string, options ...discord.ApplicationCommandOption) discord.SlashCommandCreate {
	return discord.SlashCommandCreate{
		Name:                     name,
		Description:              description,
		DefaultMemberPermissions: omit.New(&voicePerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: options,
	}
}

// replyText maps a command failure to the message shown to the user.
func replyText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, player.ErrUserNotInVoice):
		return sys.MsgNotInVoice
	case errors.Is(err, player.ErrNoSession):
		return sys.MsgNotConnected
	case errors.Is(err, player.ErrJoin):
		return sys.MsgJoinFailed
	case errors.Is(err, player.ErrQueueEmpty):
		return sys.MsgQueueEmpty
	case errors.Is(err, track.ErrNoSuchFile):
		return sys.MsgNoSuchFile
	case errors.Is(err, track.ErrStreamInit):
		return sys.MsgStreamFailed
	case errors.Is(err, track.ErrResolution):
		return sys.MsgResolveFailed
	default:
		return sys.MsgUnexpectedFailure
	}
}

var errNotReady = errors.New("music services are not set up")

// musicContext resolves the guild and services for a command, replying and
// returning false when either is missing.
func musicContext(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, *Services, bool) {
	guildID := event.GuildID()
	if guildID == nil {
		replyEphemeral(event, sys.MsgGuildOnly)
		return 0, nil, false
	}
	s := services.Load()
	if s == nil {
		sys.LogError(sys.MsgGenericError, errNotReady)
		replyEphemeral(event, sys.MsgUnexpectedFailure)
		return 0, nil, false
	}
	return *guildID, s, true
}

func textContainer(text string) discord.ContainerComponent {
	return discord.NewContainer(discord.NewTextDisplay(text))
}

func reply(event *events.ApplicationCommandInteractionCreate, text string) {
	err := event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(textContainer(text)))
	if err != nil {
		sys.LogDebug("Failed to reply to /%s: %v", event.Data.CommandName(), err)
	}
}

func replyEphemeral(event *events.ApplicationCommandInteractionCreate, text string) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		WithEphemeral(true).
		AddComponents(textContainer(text)))
}

// replyResult answers with ok on success or the mapped failure otherwise.
func replyResult(event *events.ApplicationCommandInteractionCreate, err error, ok string) {
	if err != nil {
		replyEphemeral(event, replyText(err))
		return
	}
	reply(event, ok)
}

// editReply replaces a deferred response.
func editReply(event *events.ApplicationCommandInteractionCreate, components ...discord.LayoutComponent) {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
		discord.NewMessageUpdate().
			WithIsComponentsV2(true).
			AddComponents(components...))
	if err != nil {
		sys.LogDebug("Failed to update /%s response: %v", event.Data.CommandName(), err)
	}
}

// enqueue queues src for the invoking user and edits the deferred response
// with the outcome.
func enqueue(ctx context.Context, event *events.ApplicationCommandInteractionCreate, s *Services, guildID snowflake.ID, src *track.Source, md track.Metadata) {
	userID := event.User().ID
	origin := newChannelOrigin(event)

	pos, err := s.Player.EnqueueAndMaybePlay(ctx, guildID, userID, player.NewEntry(src, md, userID, origin))
	if err != nil {
		sys.LogVoice(sys.MsgVoiceTrackFailed, guildID, err)
		editReply(event, textContainer(replyText(err)))
		return
	}

	if pos == 1 {
		editReply(event, trackContainer(sys.MsgNowPlaying, md, 0))
		return
	}
	editReply(event, trackContainer(sys.MsgAddedToQueue, md, pos-1))
}

// maxChoiceLen is Discord's limit for an autocomplete name or value.
const maxChoiceLen = 100

// choices converts suggestions into autocomplete choices. Names are clipped;
// a value over the limit cannot be submitted intact, so its suggestion is
// dropped.
func choices(in []track.Suggestion) []discord.AutocompleteChoice {
	out := make([]discord.AutocompleteChoice, 0, min(len(in), maxChoices))
	for _, s := range in {
		if len(out) >= maxChoices {
			break
		}
		if s.Value == "" || len(s.Value) > maxChoiceLen {
			continue
		}
		out = append(out, discord.AutocompleteChoiceString{
			Name:  track.Truncate(s.Name, maxChoiceLen),
			Value: s.Value,
		})
	}
	return out
}
