package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/chorus/player"
	"github.com/leeineian/chorus/sys"
	"github.com/leeineian/chorus/track"
)

const (
	openAttempts = 5
	openBackoff  = time.Second
	closeTimeout = 10 * time.Second
)

var errConnClosed = errors.New("voice connection is closed")

// Voice is the disgo-backed voice transport. It opens one connection per
// guild, answers voice presence from the gateway cache and turns the bot's
// own voice state updates into disconnect events.
type Voice struct {
	client *bot.Client

	mu    sync.Mutex
	conns map[snowflake.ID]*conn
}

func NewVoice(client *bot.Client) *Voice {
	return &Voice{
		client: client,
		conns:  make(map[snowflake.ID]*conn),
	}
}

// UserChannel reports the voice channel userID is in, from the state cache.
func (v *Voice) UserChannel(guildID, userID snowflake.ID) (snowflake.ID, bool) {
	vs, ok := v.client.Caches.VoiceState(guildID, userID)
	if !ok || vs.ChannelID == nil {
		return 0, false
	}
	return *vs.ChannelID, true
}

// Join opens a voice connection, retrying with exponential backoff.
func (v *Voice) Join(ctx context.Context, guildID, channelID snowflake.ID) (player.Conn, error) {
	vc := v.client.VoiceManager.CreateConn(guildID)

	var err error
	for i := range openAttempts {
		if i > 0 {
			backoff := openBackoff << (i - 1)
			sys.LogVoice(sys.MsgVoiceRetry, backoff, i+1, openAttempts)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				vc.Close(context.Background())
				return nil, ctx.Err()
			}
		}
		if err = vc.Open(ctx, channelID, false, false); err == nil {
			break
		}
	}
	if err != nil {
		vc.Close(context.Background())
		return nil, fmt.Errorf("open voice connection after %d attempts: %w", openAttempts, err)
	}

	c := newConn(v, guildID, vc)
	v.mu.Lock()
	v.conns[guildID] = c
	v.mu.Unlock()
	return c, nil
}

func (v *Voice) forget(c *conn) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conns[c.guildID] == c {
		delete(v.conns, c.guildID)
	}
}

// HandleVoiceStateUpdate reports an external disconnect of the bot to the
// owning session. Leaves initiated through Close are not reported.
func (v *Voice) HandleVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.UserID != v.client.ID() {
		return
	}

	v.mu.Lock()
	c, ok := v.conns[event.VoiceState.GuildID]
	v.mu.Unlock()
	if !ok {
		return
	}

	if event.VoiceState.ChannelID != nil {
		return
	}
	if !c.closing.CompareAndSwap(false, true) {
		return
	}

	c.shutdown()
	v.forget(c)

	// The session may only be replaced once disgo has dropped this connection.
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	c.vc.Close(ctx)

	c.dropped.Store(true)
	c.emit(player.Event{Kind: player.EventDisconnect})
}

// conn adapts a disgo voice connection to player.Conn. Each Play runs one
// transcoder goroutine feeding a frame provider; Stop cancels it.
type conn struct {
	voice   *Voice
	guildID snowflake.ID
	vc      voice.Conn

	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool
	dropped atomic.Bool

	mu         sync.Mutex
	handler    func(player.Event)
	stopStream context.CancelFunc
	provider   *frameProvider
}

func newConn(v *Voice, guildID snowflake.ID, vc voice.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		voice:   v,
		guildID: guildID,
		vc:      vc,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe installs the event handler. A disconnect that happened before
// any handler was installed is replayed to it.
func (c *conn) Subscribe(handler func(player.Event)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	if c.dropped.Load() {
		handler(player.Event{Kind: player.EventDisconnect})
	}
}

func (c *conn) emit(ev player.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Play starts src in the background, replacing anything still playing.
func (c *conn) Play(src *track.Source) error {
	if c.closing.Load() {
		return errConnClosed
	}

	c.mu.Lock()
	if c.stopStream != nil {
		c.stopStream()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopStream = cancel
	c.mu.Unlock()

	go c.stream(ctx, cancel, src)
	return nil
}

func (c *conn) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopStream != nil {
		c.stopStream()
		c.stopStream = nil
	}
}

func (c *conn) stream(ctx context.Context, cancel context.CancelFunc, src *track.Source) {
	defer cancel()

	err := c.transcode(ctx, src)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		sys.LogVoice(sys.MsgVoiceTranscodeFail, src, err)
	}
	c.emit(player.Event{Kind: player.EventTrackEnd, Source: src, Err: err})
}

func (c *conn) transcode(ctx context.Context, src *track.Source) error {
	var rc io.ReadCloser
	if src.Streamed() {
		var err error
		if rc, err = src.Open(ctx); err != nil {
			return err
		}
	}

	t := NewTranscoder()
	if err := t.Open(src.Input, rc); err != nil {
		t.Close()
		if rc != nil {
			rc.Close()
		}
		return fmt.Errorf("%w: %v", track.ErrStreamInit, err)
	}

	// The transcoder owns its input from here on; after a stop it may still
	// be blocked in a read, so it is released by its own goroutine.
	p := newFrameProvider(ctx)
	result := make(chan error, 1)
	go func() {
		defer t.Close()
		if rc != nil {
			defer rc.Close()
		}
		err := t.Run(ctx, p.Push)
		if err == nil && t.Packets() == 0 {
			err = fmt.Errorf("%w: no audio decoded from %s", track.ErrStreamInit, src)
		}
		p.Push(nil)
		result <- err
	}()

	c.attach(p)
	defer c.detach(p)
	c.emit(player.Event{Kind: player.EventTrackStart, Source: src})

	select {
	case <-p.Done():
		return <-result
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) attach(p *frameProvider) {
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()

	retry(func() { c.vc.SetOpusFrameProvider(p) })
	retry(func() { _ = c.vc.SetSpeaking(c.ctx, voice.SpeakingFlagMicrophone) })
}

func (c *conn) detach(p *frameProvider) {
	c.mu.Lock()
	current := c.provider == p
	if current {
		c.provider = nil
	}
	c.mu.Unlock()

	if current && !c.closing.Load() {
		retry(func() { c.vc.SetOpusFrameProvider(nil) })
		retry(func() { _ = c.vc.SetSpeaking(c.ctx, 0) })
	}
}

// retry runs f up to three times, treating a panic inside disgo as a
// transient failure of a connection that is still being set up.
func retry(f func()) {
	for range 3 {
		if tryCall(f) {
			return
		}
		time.Sleep(150 * time.Millisecond)
	}
}

func tryCall(f func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	f()
	return true
}

// Move switches the connection to channelID through a voice state update.
func (c *conn) Move(ctx context.Context, channelID snowflake.ID) error {
	if c.closing.Load() {
		return errConnClosed
	}
	return c.voice.client.UpdateVoiceState(ctx, c.guildID, &channelID, false, false)
}

// Close leaves the channel. The resulting voice state update is not
// reported as a disconnect.
func (c *conn) Close(ctx context.Context) error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.shutdown()
	c.voice.forget(c)
	c.vc.Close(ctx)
	return ctx.Err()
}

func (c *conn) shutdown() {
	c.Stop()
	c.cancel()
}
