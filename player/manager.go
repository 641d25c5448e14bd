package player

import (
	"context"
	"errors"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/chorus/sys"
	"github.com/leeineian/chorus/track"
)

type joinCall struct {
	done chan struct{}
	sess *Session
	err  error
}

var errDroppedWhileJoining = errors.New("connection dropped before the session was registered")

// Manager is the process-wide session registry. It holds at most one session
// per guild and coalesces concurrent joins for the same guild into a single
// transport join. A guild whose previous session is still leaving stays
// blocked until the old connection is released. mu only guards the maps;
// joins and leaves run outside it.
type Manager struct {
	transport Transport
	presence  Presence

	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
	joining  map[snowflake.ID]*joinCall
	leaving  map[snowflake.ID]chan struct{}
}

func NewManager(transport Transport, presence Presence) *Manager {
	return &Manager{
		transport: transport,
		presence:  presence,
		sessions:  make(map[snowflake.ID]*Session),
		joining:   make(map[snowflake.ID]*joinCall),
		leaving:   make(map[snowflake.ID]chan struct{}),
	}
}

// Get returns the connected session for guildID, or nil.
func (m *Manager) Get(guildID snowflake.ID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID]
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// GetOrCreate returns the guild's session, joining channelID if there is
// none. Concurrent callers for one guild share a single join and its result.
// A join waits for a previous session of the guild to finish leaving.
func (m *Manager) GetOrCreate(ctx context.Context, guildID, channelID snowflake.ID) (*Session, error) {
	m.mu.Lock()
	for {
		if s, ok := m.sessions[guildID]; ok {
			if s.State() == StateConnected {
				m.mu.Unlock()
				return s, nil
			}
			// Registered but no longer connected: its teardown is under way.
			m.mu.Unlock()
			select {
			case <-s.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			m.mu.Lock()
			continue
		}
		if gate, ok := m.leaving[guildID]; ok {
			m.mu.Unlock()
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			m.mu.Lock()
			continue
		}
		if c, ok := m.joining[guildID]; ok {
			m.mu.Unlock()
			select {
			case <-c.done:
				return c.sess, c.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		break
	}
	c := &joinCall{done: make(chan struct{})}
	m.joining[guildID] = c
	m.mu.Unlock()

	s, err := m.connect(ctx, guildID, channelID)

	m.mu.Lock()
	delete(m.joining, guildID)
	if err == nil {
		// A disconnect may already have torn the session down.
		if s.State() == StateConnected {
			m.sessions[guildID] = s
		} else {
			s, err = nil, &JoinError{GuildID: guildID, ChannelID: channelID, Err: errDroppedWhileJoining}
		}
	}
	m.mu.Unlock()

	c.sess, c.err = s, err
	close(c.done)
	return s, err
}

func (m *Manager) connect(ctx context.Context, guildID, channelID snowflake.ID) (*Session, error) {
	s := newSession(guildID, channelID, m.release)

	sys.LogVoice(sys.MsgVoiceJoining, channelID, guildID)
	conn, err := m.transport.Join(ctx, guildID, channelID)
	if err != nil {
		sys.LogVoice(sys.MsgVoiceJoinFailed, guildID, err)
		return nil, &JoinError{GuildID: guildID, ChannelID: channelID, Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()
	conn.Subscribe(s.handle)
	sys.LogVoice(sys.MsgVoiceJoined, channelID, guildID)
	return s, nil
}

// release deletes s from the registry unless a newer session replaced it and
// blocks new joins for the guild until the returned func is called, once the
// old connection is gone.
func (m *Manager) release(s *Session) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.GuildID] == s {
		delete(m.sessions, s.GuildID)
	}
	if _, ok := m.leaving[s.GuildID]; ok {
		return func() {}
	}

	gate := make(chan struct{})
	m.leaving[s.GuildID] = gate
	return func() {
		m.mu.Lock()
		if m.leaving[s.GuildID] == gate {
			delete(m.leaving, s.GuildID)
		}
		m.mu.Unlock()
		close(gate)
	}
}

// Remove destroys the guild's session: it leaves the channel and releases the
// connection. It is a no-op without a session.
func (m *Manager) Remove(ctx context.Context, guildID snowflake.ID) {
	if s := m.Get(guildID); s != nil {
		s.close(ctx)
	}
}

// UserChannel reports the voice channel userID currently occupies.
func (m *Manager) UserChannel(guildID, userID snowflake.ID) (snowflake.ID, bool) {
	return m.presence.UserChannel(guildID, userID)
}

// Join brings up a session in the user's current channel. If the guild
// already has a session it is returned unchanged; switching channels is Move.
func (m *Manager) Join(ctx context.Context, guildID, userID snowflake.ID) (*Session, error) {
	if s := m.Get(guildID); s != nil && s.State() == StateConnected {
		return s, nil
	}
	channelID, ok := m.presence.UserChannel(guildID, userID)
	if !ok {
		return nil, ErrUserNotInVoice
	}
	return m.GetOrCreate(ctx, guildID, channelID)
}

// Leave gracefully disconnects the guild's session.
func (m *Manager) Leave(ctx context.Context, guildID snowflake.ID) error {
	s := m.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	s.close(ctx)
	return nil
}

// EnqueueAndMaybePlay joins if needed and queues e, returning its 1-based
// position. A session torn down between lookup and enqueue is rejoined once.
func (m *Manager) EnqueueAndMaybePlay(ctx context.Context, guildID, userID snowflake.ID, e *Entry) (int, error) {
	for range 2 {
		s, err := m.Join(ctx, guildID, userID)
		if err != nil {
			return 0, err
		}
		n, err := s.Enqueue(e)
		if errors.Is(err, ErrNotConnected) {
			continue
		}
		return n, err
	}
	return 0, ErrNotConnected
}

func (m *Manager) Skip(guildID snowflake.ID) error {
	s := m.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	return s.Skip()
}

func (m *Manager) Clear(guildID snowflake.ID) error {
	s := m.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	return s.ClearPending()
}

func (m *Manager) Shuffle(guildID snowflake.ID) error {
	s := m.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	return s.ShufflePending()
}

// ListPending returns the metadata queued behind the head.
func (m *Manager) ListPending(guildID snowflake.ID) ([]track.Metadata, error) {
	s := m.Get(guildID)
	if s == nil {
		return nil, ErrNoSession
	}
	return s.SnapshotPending(), nil
}

// Move switches an existing session to the user's current channel.
func (m *Manager) Move(ctx context.Context, guildID, userID snowflake.ID) error {
	s := m.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	channelID, ok := m.presence.UserChannel(guildID, userID)
	if !ok {
		return ErrUserNotInVoice
	}
	if channelID == s.ChannelID() {
		return nil
	}
	return s.move(ctx, channelID)
}

// Shutdown leaves every guild.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	if len(sessions) == 0 {
		return
	}
	sys.LogVoice(sys.MsgVoiceShutdown, len(sessions))

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.close(ctx)
		}()
	}
	wg.Wait()
}
