package home

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/chorus/sys"
	"github.com/leeineian/chorus/track"
)

// maxQueueLines caps how many pending titles /queue lists.
const maxQueueLines = 50

// trackText renders a track card below a small header line.
func trackText(header string, md track.Metadata, pending int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-# %s\n", header)

	title := md.DisplayTitle()
	if md.WebpageURL != "" {
		fmt.Fprintf(&sb, "### [%s](%s)\n", title, md.WebpageURL)
	} else {
		fmt.Fprintf(&sb, "### %s\n", title)
	}

	switch {
	case md.Artist != "":
		fmt.Fprintf(&sb, "**%s:** %s\n", sys.MsgFieldArtist, md.Artist)
	case md.Uploader != "":
		fmt.Fprintf(&sb, "**%s:** %s\n", sys.MsgFieldAuthor, md.Uploader)
	}
	if md.Duration > 0 {
		fmt.Fprintf(&sb, "**%s:** %s\n", sys.MsgFieldDuration, track.FormatDuration(md.Duration))
	}
	if pending > 0 {
		fmt.Fprintf(&sb, "**%s:** %d\n", sys.MsgFieldQueueLength, pending)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func trackContainer(header string, md track.Metadata, pending int) discord.ContainerComponent {
	text := discord.NewTextDisplay(trackText(header, md, pending))
	if md.Thumbnail == "" {
		return discord.NewContainer(text)
	}
	return discord.NewContainer(
		discord.NewSection(text).WithAccessory(discord.NewThumbnail(md.Thumbnail)),
	)
}

// queueText lists pending titles in play order. It returns false when
// nothing is pending.
func queueText(pending []track.Metadata) (string, bool) {
	if len(pending) == 0 {
		return "", false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n", sys.MsgQueueTitle)
	for i, md := range pending {
		if i >= maxQueueLines {
			fmt.Fprintf(&sb, "-# ...and %d more\n", len(pending)-maxQueueLines)
			break
		}
		fmt.Fprintf(&sb, "`%d.` %s\n", i+1, md.DisplayTitle())
	}
	return strings.TrimRight(sb.String(), "\n"), true
}

// channelOrigin posts now-playing follow-ups to the channel a command was
// used in. Interaction tokens expire long before a deep queue drains, so
// follow-ups are plain channel messages.
type channelOrigin struct {
	client    *bot.Client
	channelID snowflake.ID
}

func newChannelOrigin(event *events.ApplicationCommandInteractionCreate) *channelOrigin {
	return &channelOrigin{
		client:    event.Client(),
		channelID: event.Channel().ID(),
	}
}

func (o *channelOrigin) NowPlaying(ctx context.Context, md track.Metadata, pending int) error {
	_, err := o.client.Rest.CreateMessage(o.channelID, discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(trackContainer(sys.MsgNowPlaying, md, pending)), rest.WithCtx(ctx))
	return err
}
