package track

import (
	"errors"
	"testing"
	"time"
)

func TestParseMetadata(t *testing.T) {
	raw := `{"title":"Video","uploader":"Chan","track":"Song","artist":"Band","duration":3725.5,` +
		`"thumbnail":"https://i.ytimg.com/x.jpg","webpage_url":"https://www.youtube.com/watch?v=x","url":"https://cdn/x"}` +
		"\n{\"title\":\"ignored\"}"

	md, err := ParseMetadata([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	want := Metadata{
		Title:      "Video",
		Uploader:   "Chan",
		Track:      "Song",
		Artist:     "Band",
		Duration:   3725*time.Second + 500*time.Millisecond,
		Thumbnail:  "https://i.ytimg.com/x.jpg",
		WebpageURL: "https://www.youtube.com/watch?v=x",
		StreamURL:  "https://cdn/x",
	}
	if md != want {
		t.Errorf("got %+v\nwant %+v", md, want)
	}
	if md.DisplayTitle() != "Song" || md.Author() != "Band" {
		t.Errorf("display = %q by %q", md.DisplayTitle(), md.Author())
	}
}

func TestParseMetadataTakesFirstEntry(t *testing.T) {
	raw := `{"_type":"playlist","entries":[{"title":"first","url":"https://cdn/1"},{"title":"second"}]}`
	md, err := ParseMetadata([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if md.Title != "first" || md.StreamURL != "https://cdn/1" {
		t.Errorf("got %+v", md)
	}
	if md.Duration != 0 {
		t.Errorf("duration = %v, want unknown", md.Duration)
	}
}

func TestParseMetadataRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":       "  ",
		"not json":    "ERROR: video unavailable",
		"no results":  `{"entries":[]}`,
		"no identity": `{"uploader":"x"}`,
	} {
		if _, err := ParseMetadata([]byte(raw)); !errors.Is(err, errMalformedRecord) {
			t.Errorf("%s: err = %v, want malformed", name, err)
		}
	}
}

func TestDisplayFallbacks(t *testing.T) {
	if got := (Metadata{}).DisplayTitle(); got != UnknownTitle {
		t.Errorf("empty title = %q", got)
	}
	md := Metadata{Title: "Video", Uploader: "Chan"}
	if md.DisplayTitle() != "Video" || md.Author() != "Chan" {
		t.Errorf("fallbacks = %q by %q", md.DisplayTitle(), md.Author())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                                         "0:00",
		59 * time.Second:                          "0:59",
		3*time.Minute + 5*time.Second:             "3:05",
		time.Hour + 2*time.Minute + 9*time.Second: "1:02:09",
		12*time.Hour + 1500*time.Millisecond:      "12:00:01",
	}
	for d, want := range tests {
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("日本語のタイトルです", 6); got != "日本語..." {
		t.Errorf("got %q", got)
	}
}

func TestCacheStoreSkipsEmptyKeys(t *testing.T) {
	c := NewCache()
	md := Metadata{Title: "x", StreamURL: "https://cdn/x"}
	c.Store(md, "query", "", "https://www.youtube.com/watch?v=x")

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	got, ok := c.Get("https://www.youtube.com/watch?v=x")
	if !ok || got != md {
		t.Errorf("Get = %+v, %v", got, ok)
	}
	if _, ok := c.Get(""); ok {
		t.Error("empty key was stored")
	}
}
