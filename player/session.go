package player

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/chorus/sys"
)

// State is a session's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const followUpTimeout = 10 * time.Second

// Session is one guild's voice session. mu guards the state, the connection
// handle and the queue together and is never held across a network call.
type Session struct {
	GuildID snowflake.ID

	mu        sync.Mutex
	state     State
	channelID snowflake.ID
	conn      Conn
	queue     []*Entry

	// release removes the session from its registry; the returned func
	// reports that the connection has been released.
	release   func(*Session) func()
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(guildID, channelID snowflake.ID, release func(*Session) func()) *Session {
	return &Session{
		GuildID:   guildID,
		channelID: channelID,
		state:     StateConnecting,
		release:   release,
		done:      make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has left and released its connection.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) ChannelID() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// handle is the single entry point for connection events.
func (s *Session) handle(ev Event) {
	switch ev.Kind {
	case EventTrackStart:
		s.onTrackStart(ev)
	case EventTrackEnd:
		s.onTrackEnd(ev)
	case EventDisconnect:
		s.onDisconnect()
	}
}

func (s *Session) onTrackStart(ev Event) {
	s.mu.Lock()
	if s.state != StateConnected || len(s.queue) == 0 || s.queue[0].Source != ev.Source {
		s.mu.Unlock()
		return
	}
	entry := s.queue[0]
	pending := len(s.queue) - 1
	s.mu.Unlock()

	sys.LogVoice(sys.MsgVoiceTrackStart, s.GuildID, entry.Metadata.DisplayTitle())

	if entry.Origin == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), followUpTimeout)
		defer cancel()
		if err := entry.Origin.NowPlaying(ctx, entry.Metadata, pending); err != nil {
			sys.LogVoice(sys.MsgVoiceFollowUpFailed, err)
		}
	}()
}

func (s *Session) onTrackEnd(ev Event) {
	s.mu.Lock()
	if s.state != StateConnected || len(s.queue) == 0 || s.queue[0].Source != ev.Source {
		s.mu.Unlock()
		return
	}

	finished := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]

	if len(s.queue) > 0 {
		s.startLocked(s.queue[0])
		s.mu.Unlock()
		s.logTrackEnd(finished, ev.Err)
		return
	}

	s.state = StateDisconnected
	s.queue = nil
	s.mu.Unlock()

	s.logTrackEnd(finished, ev.Err)
	sys.LogVoice(sys.MsgVoiceAutoLeave, s.GuildID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.teardown(ctx, true)
}

func (s *Session) logTrackEnd(e *Entry, err error) {
	if err != nil {
		sys.LogVoice(sys.MsgVoiceTrackFailed, s.GuildID, err)
		return
	}
	sys.LogVoice(sys.MsgVoiceTrackEnd, s.GuildID, e.Metadata.DisplayTitle())
}

// onDisconnect drops the session without a graceful leave; the connection
// is already gone.
func (s *Session) onDisconnect() {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.queue = nil
	s.mu.Unlock()

	sys.LogVoice(sys.MsgVoiceDropped, s.GuildID)
	s.teardown(context.Background(), false)
}

// startLocked hands e to the connection. A synchronous failure is reported
// as a track end so the queue keeps advancing.
func (s *Session) startLocked(e *Entry) {
	if err := s.conn.Play(e.Source); err != nil {
		go s.handle(Event{Kind: EventTrackEnd, Source: e.Source, Err: err})
	}
}

// close performs an explicit graceful leave.
func (s *Session) close(ctx context.Context) {
	s.mu.Lock()
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	s.queue = nil
	if wasConnected && s.conn != nil {
		s.conn.Stop()
	}
	s.mu.Unlock()

	s.teardown(ctx, true)
}

// teardown releases the registry entry first; registry absence is
// authoritative even if the graceful leave fails. The guild stays closed to
// new joins until the leave has returned.
func (s *Session) teardown(ctx context.Context, graceful bool) {
	s.closeOnce.Do(func() {
		defer close(s.done)
		released := func() {}
		if s.release != nil {
			released = s.release(s)
		}
		defer released()

		if !graceful || s.conn == nil {
			return
		}
		if err := s.conn.Close(ctx); err != nil {
			sys.LogVoice(sys.MsgVoiceLeaveFailed, s.GuildID, err)
			return
		}
		sys.LogVoice(sys.MsgVoiceLeft, s.GuildID)
	})
}

// move switches the connection to channelID.
func (s *Session) move(ctx context.Context, channelID snowflake.ID) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNoSession
	}
	conn := s.conn
	s.mu.Unlock()

	sys.LogVoice(sys.MsgVoiceMoving, channelID, s.GuildID)
	if err := conn.Move(ctx, channelID); err != nil {
		return &JoinError{GuildID: s.GuildID, ChannelID: channelID, Err: err}
	}

	s.mu.Lock()
	s.channelID = channelID
	s.mu.Unlock()
	return nil
}
