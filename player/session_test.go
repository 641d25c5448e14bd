package player

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/leeineian/chorus/track"
)

func joinedManager(t *testing.T) (*Manager, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	m := NewManager(tr, newPresence(testUser, testChannel))
	if _, err := m.Join(context.Background(), testGuild, testUser); err != nil {
		t.Fatalf("join: %v", err)
	}
	return m, tr
}

func titles(t *testing.T, m *Manager) []string {
	t.Helper()
	pending, err := m.ListPending(testGuild)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	out := make([]string, 0, len(pending))
	for _, md := range pending {
		out = append(out, md.Title)
	}
	return out
}

func TestEnqueueStartsHeadImmediately(t *testing.T) {
	m, tr := joinedManager(t)
	ctx := context.Background()
	origin := newOrigin()

	first := newEntry(t, "first", origin)
	pos, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, first)
	if err != nil || pos != 1 {
		t.Fatalf("enqueue first = (%d, %v), want (1, nil)", pos, err)
	}
	if first.Origin != nil {
		t.Error("head entry kept its origin; the command reply already announces it")
	}
	conn := tr.last()
	if conn.playedCount() != 1 {
		t.Fatalf("plays = %d, want 1", conn.playedCount())
	}

	pos, err = m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, "second", origin))
	if err != nil || pos != 2 {
		t.Fatalf("enqueue second = (%d, %v), want (2, nil)", pos, err)
	}
	if conn.playedCount() != 1 {
		t.Error("second entry started while the head was still playing")
	}

	select {
	case call := <-origin.calls:
		t.Fatalf("unexpected follow-up for %q", call.md.Title)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackEndAdvancesAndNotifiesOrigin(t *testing.T) {
	m, tr := joinedManager(t)
	ctx := context.Background()
	origin := newOrigin()

	for _, title := range []string{"a", "b", "c"} {
		if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, title, origin)); err != nil {
			t.Fatal(err)
		}
	}
	conn := tr.last()

	conn.finish()
	select {
	case call := <-origin.calls:
		if call.md.Title != "b" || call.pending != 1 {
			t.Errorf("follow-up = (%q, %d), want (\"b\", 1)", call.md.Title, call.pending)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no follow-up for the second track")
	}

	s := m.Get(testGuild)
	head, ok := s.Head()
	if !ok || head.Metadata.Title != "b" {
		t.Fatalf("head = %v, want b", head)
	}
	if got := titles(t, m); !slices.Equal(got, []string{"c"}) {
		t.Errorf("pending = %v, want [c]", got)
	}
}

func TestAutoLeaveWhenQueueDrains(t *testing.T) {
	m, tr := joinedManager(t)
	ctx := context.Background()

	if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, "only", nil)); err != nil {
		t.Fatal(err)
	}
	s := m.Get(testGuild)
	conn := tr.last()

	conn.finish()
	waitFor(t, "auto leave", func() bool { return m.Get(testGuild) == nil })
	waitFor(t, "graceful close", func() bool { return conn.closeCount() == 1 })

	if s.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", s.State())
	}
	if _, err := s.Enqueue(newEntry(t, "late", nil)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("enqueue on a drained session: err = %v, want ErrNotConnected", err)
	}
}

func TestEnqueueAfterAutoLeaveRejoins(t *testing.T) {
	m, tr := joinedManager(t)
	ctx := context.Background()

	if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, "one", nil)); err != nil {
		t.Fatal(err)
	}
	tr.last().finish()
	waitFor(t, "auto leave", func() bool { return m.Get(testGuild) == nil })

	pos, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, "two", nil))
	if err != nil || pos != 1 {
		t.Fatalf("enqueue = (%d, %v), want (1, nil)", pos, err)
	}
	if n := tr.joins.Load(); n != 2 {
		t.Errorf("transport joins = %d, want 2", n)
	}
}

func TestDisconnectDropsSession(t *testing.T) {
	m, tr := joinedManager(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b"} {
		if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, title, nil)); err != nil {
			t.Fatal(err)
		}
	}
	s := m.Get(testGuild)
	conn := tr.last()

	conn.disconnect()
	waitFor(t, "session removal", func() bool { return m.Get(testGuild) == nil })

	if s.Len() != 0 {
		t.Errorf("queue length = %d after disconnect, want 0", s.Len())
	}
	if conn.closeCount() != 0 {
		t.Error("dropped connection was closed gracefully")
	}
}

func TestPlayFailureAdvancesQueue(t *testing.T) {
	bad := newEntry(t, "broken", nil)
	good := newEntry(t, "fine", newOrigin())

	tr := &fakeTransport{setup: func(c *fakeConn) {
		c.failing = map[*track.Source]error{bad.Source: errTransport}
	}}
	m := NewManager(tr, newPresence(testUser, testChannel))
	ctx := context.Background()

	if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, bad); err != nil {
		t.Fatal(err)
	}
	// The failure is reported asynchronously, so the second entry may land
	// behind the failed head or become the head itself.
	if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, good); err != nil && !errors.Is(err, ErrNotConnected) {
		t.Fatal(err)
	}

	conn := tr.last()
	waitFor(t, "second play", func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return slices.Contains(conn.played, good.Source)
	})
}

func TestSkipSingleEntryButClearAndShuffleRefuse(t *testing.T) {
	m, tr := joinedManager(t)
	ctx := context.Background()

	if err := m.Skip(testGuild); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("skip on empty queue: err = %v, want ErrQueueEmpty", err)
	}

	if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, "solo", nil)); err != nil {
		t.Fatal(err)
	}
	if err := m.Clear(testGuild); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("clear: err = %v, want ErrQueueEmpty", err)
	}
	if err := m.Shuffle(testGuild); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("shuffle: err = %v, want ErrQueueEmpty", err)
	}
	if err := m.Skip(testGuild); err != nil {
		t.Errorf("skip: %v", err)
	}

	conn := tr.last()
	waitFor(t, "auto leave after skip", func() bool { return conn.closeCount() == 1 })
}

func TestClearKeepsHead(t *testing.T) {
	m, _ := joinedManager(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c", "d"} {
		if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, title, nil)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Clear(testGuild); err != nil {
		t.Fatal(err)
	}

	s := m.Get(testGuild)
	if s.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", s.Len())
	}
	head, _ := s.Head()
	if head.Metadata.Title != "a" {
		t.Errorf("head = %q, want a", head.Metadata.Title)
	}
	if got := titles(t, m); len(got) != 0 {
		t.Errorf("pending = %v, want none", got)
	}
}

func TestShuffleKeepsHeadAndPermutesRest(t *testing.T) {
	m, _ := joinedManager(t)
	ctx := context.Background()

	want := []string{"b", "c", "d", "e", "f", "g", "h"}
	for _, title := range append([]string{"a"}, want...) {
		if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, title, nil)); err != nil {
			t.Fatal(err)
		}
	}

	for range 5 {
		if err := m.Shuffle(testGuild); err != nil {
			t.Fatal(err)
		}
		head, _ := m.Get(testGuild).Head()
		if head.Metadata.Title != "a" {
			t.Fatalf("head moved to %q", head.Metadata.Title)
		}
		got := titles(t, m)
		slices.Sort(got)
		if !slices.Equal(got, want) {
			t.Fatalf("pending after shuffle = %v, want a permutation of %v", got, want)
		}
	}
}

func TestStaleEventsAreIgnored(t *testing.T) {
	m, _ := joinedManager(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b"} {
		if _, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, title, nil)); err != nil {
			t.Fatal(err)
		}
	}
	s := m.Get(testGuild)
	stranger := newEntry(t, "stranger", nil)

	s.handle(Event{Kind: EventTrackEnd, Source: stranger.Source})
	s.handle(Event{Kind: EventTrackStart, Source: stranger.Source})

	if s.Len() != 2 {
		t.Errorf("queue length = %d, want 2", s.Len())
	}
	head, _ := s.Head()
	if head.Metadata.Title != "a" {
		t.Errorf("head = %q, want a", head.Metadata.Title)
	}
}

func TestPlaybackScenario(t *testing.T) {
	m, tr := joinedManager(t)
	ctx := context.Background()
	origin := newOrigin()

	for i, title := range []string{"one", "two", "three"} {
		pos, err := m.EnqueueAndMaybePlay(ctx, testGuild, testUser, newEntry(t, title, origin))
		if err != nil || pos != i+1 {
			t.Fatalf("enqueue %s = (%d, %v)", title, pos, err)
		}
	}
	conn := tr.last()

	if err := m.Skip(testGuild); err != nil {
		t.Fatal(err)
	}
	if call := <-origin.calls; call.md.Title != "two" {
		t.Errorf("now playing %q, want two", call.md.Title)
	}

	conn.finish()
	if call := <-origin.calls; call.md.Title != "three" || call.pending != 0 {
		t.Errorf("now playing (%q, %d), want (three, 0)", call.md.Title, call.pending)
	}

	conn.finish()
	waitFor(t, "auto leave", func() bool { return m.Get(testGuild) == nil })
	if conn.playedCount() != 3 {
		t.Errorf("plays = %d, want 3", conn.playedCount())
	}
}
