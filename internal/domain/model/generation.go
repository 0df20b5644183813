package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// PromptRequest is the body of POST /prompt.
type PromptRequest struct {
	ClientID string         `json:"client_id"`
	Prompt   *WorkflowGraph `json:"prompt"`
	Image    string         `json:"image,omitempty"`
}

// GeneratedImage is a result picked from a history entry. Data stays nil
// unless the image was eligible for download.
type GeneratedImage struct {
	NodeID   string
	FileName string
	Type     ImageType
	Source   ImageDescriptor
	Data     []byte
}

// ResultFileName is the local file name for an image generated at t.
func ResultFileName(t time.Time) string {
	return "image_" + t.Format("20060102150405") + ".png"
}

// ImageRecord tracks an image uploaded to object storage.
type ImageRecord struct {
	ID        string
	Name      string
	Bucket    string
	PromptID  string
	CreatedAt time.Time
}

func NewImageRecord(name, bucket, promptID string) *ImageRecord {
	now := time.Now()
	return &ImageRecord{
		ID:        ulid.Make().String(),
		Name:      name,
		Bucket:    bucket,
		PromptID:  promptID,
		CreatedAt: now,
	}
}
