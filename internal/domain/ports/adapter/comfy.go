package adapter

import (
	"context"
	"io"

	"comfy-gateway/internal/domain/model"
)

// UploadParams describe an input image pushed to the backend.
type UploadParams struct {
	Name      string
	Type      model.ImageType
	Overwrite bool
}

// GenerationBackend is the port to the ComfyUI-compatible server.
//
// Transport failures are reported as domain.ErrBackendUnavailable, responses
// missing expected fields as domain.ErrProtocol.
type GenerationBackend interface {
	QueuePrompt(ctx context.Context, req model.PromptRequest) (promptID string, err error)
	// History returns found=false when the backend does not know promptID yet.
	History(ctx context.Context, promptID string) (entry *model.HistoryEntry, found bool, err error)
	ViewImage(ctx context.Context, img model.ImageDescriptor) ([]byte, error)
	// UploadImage returns the asset name chosen by the backend.
	UploadImage(ctx context.Context, r io.Reader, p UploadParams) (string, error)
	Ping(ctx context.Context) error
}
