package home

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(musicCommand("play_local", "Play a file from the local audio library",
		discord.ApplicationCommandOptionString{
			Name:         "query",
			Description:  "File name",
			Required:     true,
			Autocomplete: true,
		},
	), handlePlayLocal)

	sys.RegisterAutocompleteHandler("play_local", handlePlayLocalAutocomplete)
}

func handlePlayLocal(event *events.ApplicationCommandInteractionCreate) {
	guildID, s, ok := musicContext(event)
	if !ok {
		return
	}
	name, _ := event.SlashCommandInteractionData().OptString("query")

	if _, ok := s.Player.UserChannel(guildID, event.User().ID); !ok {
		replyEphemeral(event, sys.MsgNotInVoice)
		return
	}
	if s.Library == nil {
		replyEphemeral(event, sys.MsgNoSuchFile)
		return
	}
	src, md, err := s.Library.Lookup(name)
	if err != nil {
		replyEphemeral(event, replyText(err))
		return
	}

	_ = event.DeferCreateMessage(false)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	enqueue(ctx, event, s, guildID, src, md)
}

func handlePlayLocalAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	s := services.Load()
	if s == nil || s.Library == nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	var cs []discord.AutocompleteChoice
	for _, name := range s.Library.Match(focused.String(), maxChoices) {
		cs = append(cs, discord.AutocompleteChoiceString{Name: name, Value: name})
	}
	_ = event.AutocompleteResult(cs)
}
