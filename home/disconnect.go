package home

import (
	"context"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(musicCommand("disconnect", "Stop playback and leave the voice channel"), handleDisconnect)
}

func handleDisconnect(event *events.ApplicationCommandInteractionCreate) {
	guildID, s, ok := musicContext(event)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	replyResult(event, s.Player.Leave(ctx, guildID), sys.MsgDisconnected)
}
