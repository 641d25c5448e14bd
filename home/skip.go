package home

import (
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(musicCommand("skip", "Skip the current track"), handleSkip)
}

func handleSkip(event *events.ApplicationCommandInteractionCreate) {
	guildID, s, ok := musicContext(event)
	if !ok {
		return
	}
	replyResult(event, s.Player.Skip(guildID), sys.MsgSkipped)
}
