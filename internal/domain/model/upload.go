package model

import (
	"fmt"
	"time"
)

// UploadRequest carries the metadata sent to the remote service for one video.
type UploadRequest struct {
	Title       string
	Description string
	GroupID     int64
	Privacy     Privacy
}

// UploadDestination is returned by the remote service before a transfer: where
// to send the bytes and the identifiers the video will have.
type UploadDestination struct {
	UploadURL string
	OwnerID   int64
	VideoID   int64
}

// UploadResult is produced once per successful attempt.
type UploadResult struct {
	OwnerID int64
	VideoID int64
	URL     string
}

// VideoURL builds the public URL of an uploaded video.
func VideoURL(ownerID, videoID int64) string {
	return fmt.Sprintf("https://vk.com/video%d_%d", ownerID, videoID)
}

// UploadRecord is the persisted provenance of a completed upload.
type UploadRecord struct {
	ID          int64
	TaskID      string
	FilePath    string
	Title       string
	SourceURL   string
	OwnerID     int64
	VideoID     int64
	URL         string
	CompletedAt time.Time
}

// ProgressSink receives percentage updates for a single transfer attempt.
type ProgressSink func(percent int)

// Group is a community the current user may upload videos into.
type Group struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photo_50"`
}

// User is the account the access token belongs to.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
