package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
)

// ErrStreamInit is returned when a resolved track cannot be turned into a
// playable input.
var ErrStreamInit = errors.New("failed to initialise stream")

// Source is a playable input for the voice transport. Direct sources name a
// URL or file that the transcoder opens itself; streamed sources are produced
// by the resolver process and must be read through Open.
type Source struct {
	Input string
	open  func(ctx context.Context) (io.ReadCloser, error)
}

// NewURLSource builds a direct source from a resolved stream URL.
func NewURLSource(raw string) (*Source, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: resolver returned no stream url", ErrStreamInit)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamInit, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrStreamInit, u.Scheme)
	}
	return &Source{Input: raw}, nil
}

// NewFileSource builds a direct source over a local audio file.
func NewFileSource(path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamInit, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a file", ErrStreamInit, path)
	}
	return &Source{Input: path}, nil
}

// NewStreamedSource wraps a function that opens the media as a byte stream.
func NewStreamedSource(name string, open func(ctx context.Context) (io.ReadCloser, error)) (*Source, error) {
	if open == nil {
		return nil, fmt.Errorf("%w: no stream opener", ErrStreamInit)
	}
	return &Source{Input: name, open: open}, nil
}

// Streamed reports whether the source must be consumed through Open.
func (s *Source) Streamed() bool { return s.open != nil }

func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.open == nil {
		return nil, errors.New("source is not streamed")
	}
	rc, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamInit, err)
	}
	return rc, nil
}

func (s *Source) String() string { return s.Input }
