package track

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLibraryMatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Intro.mp3", "outro.ogg", "Interlude.flac", "ambience.wav")
	if err := os.Mkdir(filepath.Join(dir, "intro-dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	lib, err := OpenLibrary(dir)
	if err != nil {
		t.Fatal(err)
	}
	if lib.Len() != 4 {
		t.Errorf("len = %d, want 4 (directories excluded)", lib.Len())
	}

	if got := lib.Match("INT", 25); !slices.Equal(got, []string{"Interlude.flac", "Intro.mp3"}) {
		t.Errorf("Match(INT) = %v", got)
	}
	if got := lib.Match("", 2); len(got) != 2 {
		t.Errorf("Match(\"\", 2) returned %d names", len(got))
	}
	if got := lib.Match("nothing", 25); len(got) != 0 {
		t.Errorf("Match(nothing) = %v", got)
	}
}

func TestLibraryMatchLimit(t *testing.T) {
	dir := t.TempDir()
	for i := range 30 {
		writeFiles(t, dir, "track"+string(rune('a'+i%26))+string(rune('a'+i/26))+".mp3")
	}
	lib, err := OpenLibrary(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := lib.Match("track", 25); len(got) != 25 {
		t.Errorf("got %d names, want 25", len(got))
	}
}

func TestLibraryLookup(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "song.mp3")
	lib, err := OpenLibrary(dir)
	if err != nil {
		t.Fatal(err)
	}

	src, md, err := lib.Lookup("song.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if src.Input != filepath.Join(dir, "song.mp3") || src.Streamed() {
		t.Errorf("source = %+v", src)
	}
	if md.DisplayTitle() != "song.mp3" {
		t.Errorf("title = %q", md.DisplayTitle())
	}

	if _, _, err := lib.Lookup("missing.mp3"); !errors.Is(err, ErrNoSuchFile) {
		t.Errorf("err = %v, want ErrNoSuchFile", err)
	}

	if err := os.Remove(filepath.Join(dir, "song.mp3")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := lib.Lookup("song.mp3"); !errors.Is(err, ErrStreamInit) {
		t.Errorf("err = %v, want ErrStreamInit for a vanished file", err)
	}
}

func TestEmptyLibrary(t *testing.T) {
	lib, err := OpenLibrary("")
	if err != nil {
		t.Fatal(err)
	}
	if lib.Len() != 0 || len(lib.Match("a", 25)) != 0 {
		t.Error("library without a directory should be empty")
	}
	if _, err := OpenLibrary(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("missing directory should fail")
	}
}

func TestSources(t *testing.T) {
	if _, err := NewURLSource(""); !errors.Is(err, ErrStreamInit) {
		t.Errorf("empty url: %v", err)
	}
	if _, err := NewURLSource("ftp://host/file"); !errors.Is(err, ErrStreamInit) {
		t.Errorf("ftp url: %v", err)
	}
	if _, err := NewFileSource(t.TempDir()); !errors.Is(err, ErrStreamInit) {
		t.Errorf("directory: %v", err)
	}
	if _, err := NewStreamedSource("x", nil); !errors.Is(err, ErrStreamInit) {
		t.Errorf("nil opener: %v", err)
	}
	src, err := NewURLSource("https://cdn.example/a")
	if err != nil || src.String() != "https://cdn.example/a" {
		t.Errorf("url source = %v, %v", src, err)
	}
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		if r.URL.Path == "/expired" {
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	p := HTTPProber{Client: srv.Client()}
	ctx := context.Background()

	if err := p.Probe(ctx, srv.URL+"/live"); err != nil {
		t.Errorf("live: %v", err)
	}
	if err := p.Probe(ctx, srv.URL+"/expired"); err == nil {
		t.Error("expired url passed the probe")
	}
	if err := p.Probe(ctx, ""); err == nil {
		t.Error("empty target passed the probe")
	}

	dir := t.TempDir()
	writeFiles(t, dir, "a.mp3")
	if err := p.Probe(ctx, filepath.Join(dir, "a.mp3")); err != nil {
		t.Errorf("local file: %v", err)
	}
	if err := p.Probe(ctx, filepath.Join(dir, "b.mp3")); err == nil {
		t.Error("missing local file passed the probe")
	}
}
