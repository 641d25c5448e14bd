package player

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/chorus/track"
)

// EventKind tags a lifecycle event reported by a voice connection.
type EventKind int

const (
	EventTrackStart EventKind = iota + 1
	EventTrackEnd
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventTrackStart:
		return "track-start"
	case EventTrackEnd:
		return "track-end"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is delivered to the owning session's single handler. Source names
// the input the event refers to; it is nil for EventDisconnect.
type Event struct {
	Kind   EventKind
	Source *track.Source
	Err    error
}

// Conn is one guild's voice connection.
//
// Play starts streaming src and returns without waiting for it; the
// connection then reports EventTrackStart and, when the input is exhausted or
// stopped, EventTrackEnd. Stop ends the current input early. Close leaves the
// channel; an involuntary loss of the connection is reported as
// EventDisconnect instead.
type Conn interface {
	Play(src *track.Source) error
	Stop()
	Move(ctx context.Context, channelID snowflake.ID) error
	Close(ctx context.Context) error
	Subscribe(handler func(Event))
}

// Transport opens voice connections.
type Transport interface {
	Join(ctx context.Context, guildID, channelID snowflake.ID) (Conn, error)
}

// Presence answers which voice channel a user currently occupies.
type Presence interface {
	UserChannel(guildID, userID snowflake.ID) (snowflake.ID, bool)
}

// Origin is the command that queued an entry; it receives the follow-up when
// the entry starts playing.
type Origin interface {
	NowPlaying(ctx context.Context, md track.Metadata, pending int) error
}

// Entry is one queued track.
type Entry struct {
	Source      *track.Source
	Metadata    track.Metadata
	Origin      Origin
	RequesterID snowflake.ID
	EnqueuedAt  time.Time
}

func NewEntry(src *track.Source, md track.Metadata, requester snowflake.ID, origin Origin) *Entry {
	return &Entry{
		Source:      src,
		Metadata:    md,
		Origin:      origin,
		RequesterID: requester,
		EnqueuedAt:  time.Now(),
	}
}
