package proc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestFrameProviderDrainsWithSilence(t *testing.T) {
	p := newFrameProvider(context.Background())
	go func() {
		p.Push([]byte{1})
		p.Push([]byte{2})
		p.Push(nil)
	}()

	for _, want := range [][]byte{{1}, {2}} {
		got, err := p.ProvideOpusFrame()
		if err != nil || !bytes.Equal(got, want) {
			t.Fatalf("frame = %v, %v; want %v", got, err, want)
		}
	}

	tail := int(SilenceTail / (20 * time.Millisecond))
	for i := 0; i <= tail; i++ {
		got, err := p.ProvideOpusFrame()
		if err != nil || !bytes.Equal(got, OpusSilence) {
			t.Fatalf("tail frame %d = %v, %v; want silence", i, got, err)
		}
	}
	if _, err := p.ProvideOpusFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want EOF after the tail", err)
	}

	select {
	case <-p.Done():
	default:
		t.Error("done not closed after drain")
	}
}

func TestFrameProviderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newFrameProvider(ctx)
	cancel()

	if _, err := p.ProvideOpusFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want EOF", err)
	}
	select {
	case <-p.Done():
	default:
		t.Error("done not closed after cancel")
	}

	finished := make(chan struct{})
	go func() {
		for range frameBuffer + 1 {
			p.Push([]byte{0})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("push blocked on a cancelled provider")
	}
}

func TestFrameProviderFillsGapsWithSilence(t *testing.T) {
	p := newFrameProvider(context.Background())
	start := time.Now()
	got, err := p.ProvideOpusFrame()
	if err != nil || !bytes.Equal(got, OpusSilence) {
		t.Fatalf("frame = %v, %v; want silence", got, err)
	}
	if time.Since(start) < frameTimeout/2 {
		t.Error("silence returned before the frame timeout")
	}
}
