package home

import (
	"context"
	"errors"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/chorus/player"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(musicCommand("change_channel", "Move the bot to your voice channel"), handleChangeChannel)
}

func handleChangeChannel(event *events.ApplicationCommandInteractionCreate) {
	guildID, s, ok := musicContext(event)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	err := s.Player.Move(ctx, guildID, event.User().ID)
	switch {
	case err == nil:
		reply(event, sys.MsgChangedChannel)
	case errors.Is(err, player.ErrNoSession), errors.Is(err, player.ErrUserNotInVoice):
		replyEphemeral(event, replyText(err))
	default:
		sys.LogVoice(sys.MsgGenericError, err)
		replyEphemeral(event, sys.MsgChangeFailed)
	}
}
