package home

import (
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(musicCommand("shuffle", "Shuffle the tracks waiting to play"), handleShuffle)
}

func handleShuffle(event *events.ApplicationCommandInteractionCreate) {
	guildID, s, ok := musicContext(event)
	if !ok {
		return
	}
	replyResult(event, s.Player.Shuffle(guildID), sys.MsgQueueShuffled)
}
