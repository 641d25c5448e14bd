package track

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// UnknownTitle is shown when a track carries neither a track name nor a title.
const UnknownTitle = "Unknown title"

// Metadata is an immutable description of a resolved track. Empty strings mean
// the field was not reported; a zero Duration means the length is unknown.
type Metadata struct {
	Title      string
	Uploader   string
	Track      string
	Artist     string
	Duration   time.Duration
	Thumbnail  string
	WebpageURL string
	StreamURL  string
}

// DisplayTitle prefers the track name over the video title.
func (m Metadata) DisplayTitle() string {
	switch {
	case m.Track != "":
		return m.Track
	case m.Title != "":
		return m.Title
	default:
		return UnknownTitle
	}
}

// Author prefers the credited artist over the uploader.
func (m Metadata) Author() string {
	if m.Artist != "" {
		return m.Artist
	}
	return m.Uploader
}

// FormatDuration renders d as h:mm:ss, or m:ss below one hour.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var errMalformedRecord = errors.New("malformed resolver output")

type ytdlpRecord struct {
	Title      string        `json:"title"`
	Uploader   string        `json:"uploader"`
	Track      string        `json:"track"`
	Artist     string        `json:"artist"`
	Duration   *float64      `json:"duration"`
	Thumbnail  string        `json:"thumbnail"`
	WebpageURL string        `json:"webpage_url"`
	URL        string        `json:"url"`
	Entries    []ytdlpRecord `json:"entries"`
}

// ParseMetadata decodes a single yt-dlp JSON record. Playlist-shaped output
// (search results) yields its first entry.
func ParseMetadata(raw []byte) (Metadata, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Metadata{}, fmt.Errorf("%w: empty output", errMalformedRecord)
	}
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}

	var rec ytdlpRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", errMalformedRecord, err)
	}
	if rec.Entries != nil {
		if len(rec.Entries) == 0 {
			return Metadata{}, fmt.Errorf("%w: no results", errMalformedRecord)
		}
		rec = rec.Entries[0]
	}
	if rec.Title == "" && rec.URL == "" && rec.WebpageURL == "" {
		return Metadata{}, fmt.Errorf("%w: record has no title or url", errMalformedRecord)
	}

	md := Metadata{
		Title:      rec.Title,
		Uploader:   rec.Uploader,
		Track:      rec.Track,
		Artist:     rec.Artist,
		Thumbnail:  rec.Thumbnail,
		WebpageURL: rec.WebpageURL,
		StreamURL:  rec.URL,
	}
	if rec.Duration != nil && *rec.Duration > 0 {
		md.Duration = time.Duration(*rec.Duration * float64(time.Second))
	}
	return md, nil
}
