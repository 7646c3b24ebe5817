package model

import (
	"net/url"
	"strings"
	"time"
)

// VideoMetadata describes a source video as reported by the extractor.
type VideoMetadata struct {
	SourceID     string        `json:"source_id"`
	URL          string        `json:"url"`
	Title        string        `json:"title"`
	Duration     time.Duration `json:"duration"`
	ViewCount    int64         `json:"view_count"`
	UploadDate   string        `json:"upload_date"`
	ThumbnailURL string        `json:"thumbnail_url"`
	Description  string        `json:"description"`
	Uploader     string        `json:"uploader"`
}

// SourceVideoID extracts the source video ID from a watch or short link. It returns
// an empty string when the URL carries no recognisable ID.
func SourceVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				return strings.SplitN(rest, "/", 2)[0]
			}
		}
	}
	return ""
}
