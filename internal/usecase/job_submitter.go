package usecase

import (
	"context"
	"fmt"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/adapter"
	"comfy-gateway/internal/infra/logging"
	"comfy-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// JobSubmitter queues patched graphs on the backend.
type JobSubmitter struct {
	backend adapter.GenerationBackend
	log     *zerolog.Logger
}

func NewJobSubmitter(backend adapter.GenerationBackend, logger *zerolog.Logger) *JobSubmitter {
	l := logger.With().Str("component", "JobSubmitter").Logger()
	return &JobSubmitter{backend: backend, log: &l}
}

// Submit queues g under clientID and returns the backend's prompt id. asset
// is the uploaded input image name, or "" for text-only jobs.
func (s *JobSubmitter) Submit(ctx context.Context, g *model.WorkflowGraph, clientID, asset string) (string, error) {
	defer logging.TraceDuration(s.log, "JobSubmitter.Submit")()

	kind := "text"
	if asset != "" {
		kind = "image"
	}
	if g == nil {
		return "", fmt.Errorf("%w: nil workflow", domain.ErrInvalidArgument)
	}

	id, err := s.backend.QueuePrompt(ctx, model.PromptRequest{ClientID: clientID, Prompt: g, Image: asset})
	if err != nil {
		metrics.IncPromptQueued(kind, "error")
		logging.With(ctx, s.log).Error().Err(err).Str("client_id", clientID).Msg("queue prompt failed")
		return "", err
	}
	metrics.IncPromptQueued(kind, "ok")
	logging.With(ctx, s.log).Info().Str("prompt_id", id).Str("kind", kind).Msg("prompt queued")
	return id, nil
}
