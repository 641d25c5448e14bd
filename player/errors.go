package player

import (
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

var (
	// ErrJoin classifies every failure to bring a session up.
	ErrJoin = errors.New("failed to join voice channel")
	// ErrUserNotInVoice is a join failure caused by the invoking user.
	ErrUserNotInVoice = fmt.Errorf("%w: user is not in a voice channel", ErrJoin)

	// ErrNoSession is returned by leave and queue operations on a guild
	// without an active session.
	ErrNoSession = errors.New("no active voice session")
	// ErrNotConnected is returned when an entry is enqueued on a session that
	// is not (or no longer) connected.
	ErrNotConnected = errors.New("voice session is not connected")
	// ErrQueueEmpty is returned by skip on an empty queue and by clear and
	// shuffle when nothing is pending behind the head.
	ErrQueueEmpty = errors.New("queue is empty")
)

// JoinError wraps a transport failure while connecting.
type JoinError struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Err       error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join channel %s in guild %s: %v", e.ChannelID, e.GuildID, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

func (e *JoinError) Is(target error) bool { return target == ErrJoin }
