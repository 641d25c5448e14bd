package proc

import (
	"context"
	"io"
	"sync"
	"time"
)

var (
	// OpusSilence is a single silent Opus frame.
	OpusSilence = []byte{0xf8, 0xff, 0xfe}
	// SilenceTail is played after the last frame so the receiver's jitter
	// buffer does not clip the end of the track.
	SilenceTail = 1 * time.Second
)

const (
	frameBuffer  = 100
	frameTimeout = 500 * time.Millisecond
)

// frameProvider hands transcoded Opus frames to the voice connection. A nil
// frame marks the end of input; after the silence tail the provider reports
// io.EOF and closes done.
type frameProvider struct {
	ctx    context.Context
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	draining bool
	silence  int
}

func newFrameProvider(ctx context.Context) *frameProvider {
	return &frameProvider{
		ctx:    ctx,
		frames: make(chan []byte, frameBuffer),
		done:   make(chan struct{}),
	}
}

// Push queues a frame, blocking while the buffer is full.
func (p *frameProvider) Push(frame []byte) {
	select {
	case p.frames <- frame:
	case <-p.ctx.Done():
	}
}

func (p *frameProvider) ProvideOpusFrame() ([]byte, error) {
	if p.draining {
		if p.silence < int(SilenceTail/(20*time.Millisecond)) {
			p.silence++
			return OpusSilence, nil
		}
		p.Close()
		return nil, io.EOF
	}

	select {
	case frame := <-p.frames:
		if frame == nil {
			p.draining = true
			return OpusSilence, nil
		}
		return frame, nil
	case <-p.ctx.Done():
		p.Close()
		return nil, io.EOF
	case <-time.After(frameTimeout):
		return OpusSilence, nil
	}
}

func (p *frameProvider) Close() {
	p.once.Do(func() { close(p.done) })
}

// Done is closed once the provider has delivered its last frame.
func (p *frameProvider) Done() <-chan struct{} { return p.done }
