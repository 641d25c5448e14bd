package home

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(musicCommand("play", "Play a track from a URL or search query",
		discord.ApplicationCommandOptionString{
			Name:         "query",
			Description:  "URL or search terms",
			Required:     true,
			Autocomplete: true,
		},
	), handlePlay)

	sys.RegisterAutocompleteHandler("play", handlePlayAutocomplete)
}

func handlePlay(event *events.ApplicationCommandInteractionCreate) {
	guildID, s, ok := musicContext(event)
	if !ok {
		return
	}
	query, _ := event.SlashCommandInteractionData().OptString("query")

	// Resolution can outlast the 3s interaction window.
	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, ok := s.Player.UserChannel(guildID, event.User().ID); !ok {
		editReply(event, textContainer(sys.MsgNotInVoice))
		return
	}

	src, md, err := s.Resolver.Resolve(ctx, query)
	if err != nil {
		sys.LogResolver(sys.MsgGenericError, err)
		editReply(event, textContainer(replyText(err)))
		return
	}
	enqueue(ctx, event, s, guildID, src, md)
}

func handlePlayAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	s := services.Load()
	if s == nil || s.Suggester == nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	results := s.Suggester.Suggest(context.Background(), focused.String(), maxChoices)
	_ = event.AutocompleteResult(choices(results))
}
