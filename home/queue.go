package home

import (
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(musicCommand("queue", "Show the tracks waiting to play"), handleQueue)
}

func handleQueue(event *events.ApplicationCommandInteractionCreate) {
	guildID, s, ok := musicContext(event)
	if !ok {
		return
	}
	pending, err := s.Player.ListPending(guildID)
	if err != nil {
		replyEphemeral(event, replyText(err))
		return
	}
	text, ok := queueText(pending)
	if !ok {
		reply(event, sys.MsgQueueEmpty)
		return
	}
	reply(event, text)
}
