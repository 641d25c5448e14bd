package home

import (
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(musicCommand("clear_queue", "Remove every track waiting to play"), handleClearQueue)
}

func handleClearQueue(event *events.ApplicationCommandInteractionCreate) {
	guildID, s, ok := musicContext(event)
	if !ok {
		return
	}
	replyResult(event, s.Player.Clear(guildID), sys.MsgQueueCleared)
}
