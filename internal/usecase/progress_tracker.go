package usecase

import (
	"context"

	"comfy-gateway/internal/domain/ports/adapter"
	"comfy-gateway/internal/infra/logging"
	"comfy-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// ProgressTracker estimates job progress from the backend history document.
type ProgressTracker struct {
	backend adapter.GenerationBackend
	log     *zerolog.Logger
}

func NewProgressTracker(backend adapter.GenerationBackend, logger *zerolog.Logger) *ProgressTracker {
	l := logger.With().Str("component", "ProgressTracker").Logger()
	return &ProgressTracker{backend: backend, log: &l}
}

// ComputeProgress returns a percentage in [0, 100]. Jobs the backend has no
// history for yet (queued or unknown) report 0.
func (t *ProgressTracker) ComputeProgress(ctx context.Context, jobID string) (float64, error) {
	defer logging.TraceDuration(t.log, "ProgressTracker.ComputeProgress")()

	entry, found, err := t.backend.History(ctx, jobID)
	if err != nil {
		metrics.IncProgressQuery("error")
		return 0, err
	}
	if !found {
		metrics.IncProgressQuery("absent")
		return 0, nil
	}
	p := entry.Progress()
	if p >= 100 {
		metrics.IncProgressQuery("completed")
	} else {
		metrics.IncProgressQuery("running")
	}
	return p, nil
}
