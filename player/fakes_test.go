package player

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/chorus/track"
)

const (
	testGuild   = snowflake.ID(100000000000000001)
	testChannel = snowflake.ID(200000000000000001)
	otherChan   = snowflake.ID(200000000000000002)
	testUser    = snowflake.ID(300000000000000001)
)

type fakeConn struct {
	mu       sync.Mutex
	handler  func(Event)
	current  *track.Source
	played   []*track.Source
	failing  map[*track.Source]error
	moves    []snowflake.ID
	moveErr  error
	closes   int
	closeErr error

	// closeGate, when set, holds Close until it is closed.
	closeGate chan struct{}
	// dropOnSubscribe reports a disconnect as soon as a handler subscribes.
	dropOnSubscribe bool
}

func (c *fakeConn) emit(ev Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		go h(ev)
	}
}

func (c *fakeConn) Play(src *track.Source) error {
	c.mu.Lock()
	c.played = append(c.played, src)
	if err := c.failing[src]; err != nil {
		c.mu.Unlock()
		return err
	}
	c.current = src
	c.mu.Unlock()
	c.emit(Event{Kind: EventTrackStart, Source: src})
	return nil
}

func (c *fakeConn) Stop() {
	c.mu.Lock()
	cur := c.current
	c.current = nil
	c.mu.Unlock()
	if cur != nil {
		c.emit(Event{Kind: EventTrackEnd, Source: cur})
	}
}

func (c *fakeConn) Move(ctx context.Context, channelID snowflake.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.moveErr != nil {
		return c.moveErr
	}
	c.moves = append(c.moves, channelID)
	return nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closes++
	gate, err := c.closeGate, c.closeErr
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (c *fakeConn) Subscribe(handler func(Event)) {
	c.mu.Lock()
	c.handler = handler
	drop := c.dropOnSubscribe
	c.mu.Unlock()
	if drop {
		handler(Event{Kind: EventDisconnect})
	}
}

// finish ends the current input as if it ran out naturally.
func (c *fakeConn) finish() { c.Stop() }

func (c *fakeConn) disconnect() { c.emit(Event{Kind: EventDisconnect}) }

func (c *fakeConn) playedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.played)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeTransport struct {
	delay time.Duration
	err   error
	joins atomic.Int32

	mu    sync.Mutex
	conns []*fakeConn
	setup func(*fakeConn)
}

func (t *fakeTransport) Join(ctx context.Context, guildID, channelID snowflake.ID) (Conn, error) {
	t.joins.Add(1)
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	c := &fakeConn{}
	if t.setup != nil {
		t.setup(c)
	}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type fakePresence struct {
	mu       sync.Mutex
	channels map[snowflake.ID]snowflake.ID
}

func newPresence(userID, channelID snowflake.ID) *fakePresence {
	return &fakePresence{channels: map[snowflake.ID]snowflake.ID{userID: channelID}}
}

func (p *fakePresence) set(userID, channelID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[userID] = channelID
}

func (p *fakePresence) UserChannel(guildID, userID snowflake.ID) (snowflake.ID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[userID]
	return ch, ok
}

type nowPlayingCall struct {
	md      track.Metadata
	pending int
}

type fakeOrigin struct {
	calls chan nowPlayingCall
}

func newOrigin() *fakeOrigin {
	return &fakeOrigin{calls: make(chan nowPlayingCall, 8)}
}

func (o *fakeOrigin) NowPlaying(ctx context.Context, md track.Metadata, pending int) error {
	o.calls <- nowPlayingCall{md: md, pending: pending}
	return nil
}

func newEntry(t *testing.T, title string, origin Origin) *Entry {
	t.Helper()
	src, err := track.NewStreamedSource(title, func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(title)), nil
	})
	if err != nil {
		t.Fatalf("NewStreamedSource: %v", err)
	}
	return NewEntry(src, track.Metadata{Title: title}, testUser, origin)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errTransport = errors.New("gateway refused")
