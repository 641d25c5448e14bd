package track

import (
	"context"
	"sync"
	"time"

	"github.com/leeineian/chorus/sys"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

// Suggestion is one autocomplete choice; Value is what /play receives.
type Suggestion struct {
	Name  string
	Value string
}

type cachedSuggestions struct {
	items     []Suggestion
	expiresAt time.Time
}

// Suggester searches YouTube Music and YouTube for autocomplete choices.
type Suggester struct {
	timeout time.Duration
	ttl     time.Duration

	mu    sync.RWMutex
	items map[string]cachedSuggestions
}

func NewSuggester(timeout time.Duration) *Suggester {
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	return &Suggester{
		timeout: timeout,
		ttl:     time.Hour,
		items:   make(map[string]cachedSuggestions),
	}
}

// Suggest returns at most limit choices. Music results come first; a source
// that does not answer within the timeout is skipped.
func (s *Suggester) Suggest(ctx context.Context, q string, limit int) []Suggestion {
	if q == "" {
		return nil
	}

	s.mu.RLock()
	if c, ok := s.items[q]; ok && time.Now().Before(c.expiresAt) {
		s.mu.RUnlock()
		return clip(c.items, limit)
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		music   []Suggestion
		youtube []Suggestion
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		music = searchMusic(q)
	}()
	go func() {
		defer wg.Done()
		youtube = searchVideos(ctx, q)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		sys.LogResolver(sys.MsgSuggestTimeout, q)
		return nil
	}

	seen := make(map[string]bool)
	var out []Suggestion
	for _, list := range [][]Suggestion{music, youtube} {
		for _, sg := range list {
			if seen[sg.Value] {
				continue
			}
			seen[sg.Value] = true
			out = append(out, sg)
		}
	}

	if len(out) > 0 {
		s.mu.Lock()
		s.items[q] = cachedSuggestions{items: out, expiresAt: time.Now().Add(s.ttl)}
		s.mu.Unlock()
	}
	return clip(out, limit)
}

func searchMusic(q string) []Suggestion {
	r, err := ytmusic.TrackSearch(q).Next()
	if err != nil {
		return nil
	}
	var out []Suggestion
	for _, v := range r.Tracks {
		if v.VideoID == "" {
			continue
		}
		name := v.Title
		if len(v.Artists) > 0 {
			name += " - " + v.Artists[0].Name
		}
		out = append(out, Suggestion{
			Name:  Truncate(name, 100),
			Value: "https://music.youtube.com/watch?v=" + v.VideoID,
		})
	}
	return out
}

func searchVideos(ctx context.Context, q string) []Suggestion {
	r, err := ytsearch.NewClient(nil).Search(ctx, q)
	if err != nil {
		return nil
	}
	var out []Suggestion
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		name := v.Title
		if v.Channel != "" {
			name += " - " + v.Channel
		}
		out = append(out, Suggestion{
			Name:  Truncate(name, 100),
			Value: "https://www.youtube.com/watch?v=" + v.VideoID,
		})
	}
	return out
}

func clip(in []Suggestion, limit int) []Suggestion {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
