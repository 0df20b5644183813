package usecase

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/adapter"
	"comfy-gateway/internal/domain/ports/repository"
	"comfy-gateway/internal/infra/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ GenerationUseCase = (*generationUC)(nil)

// GenerationUseCase is what the HTTP API exposes for image generation.
type GenerationUseCase interface {
	ListWorkflows(ctx context.Context) ([]string, error)
	Queue(ctx context.Context, req QueueRequest) (string, error)
	Progress(ctx context.Context, jobID string) (float64, error)
	FetchImage(ctx context.Context, jobID string) (string, error)
}

// QueueRequest is one generation request. Image holds the raw bytes of an
// optional conditioning image.
type QueueRequest struct {
	Prompt         string
	NegativePrompt string
	Workflow       string
	Image          []byte
}

type GenerationOptions struct {
	DefaultWorkflow      string
	DefaultImageWorkflow string
	PresignTTL           time.Duration
}

type generationUC struct {
	workflows repository.WorkflowRepository
	jobs      repository.SubmissionRepository
	images    repository.ImageRepository
	storage   adapter.ObjectStorage
	backend   adapter.GenerationBackend

	patcher   *PromptPatcher
	submitter *JobSubmitter
	tracker   *ProgressTracker
	fetcher   *ResultFetcher

	opts GenerationOptions
	log  *zerolog.Logger
}

func NewGenerationUseCase(
	workflows repository.WorkflowRepository,
	jobs repository.SubmissionRepository,
	images repository.ImageRepository,
	storage adapter.ObjectStorage,
	backend adapter.GenerationBackend,
	patcher *PromptPatcher,
	fetcher *ResultFetcher,
	opts GenerationOptions,
	logger *zerolog.Logger,
) *generationUC {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 10 * time.Minute
	}
	l := logger.With().Str("component", "GenerationUC").Logger()
	return &generationUC{
		workflows: workflows,
		jobs:      jobs,
		images:    images,
		storage:   storage,
		backend:   backend,
		patcher:   patcher,
		submitter: NewJobSubmitter(backend, logger),
		tracker:   NewProgressTracker(backend, logger),
		fetcher:   fetcher,
		opts:      opts,
		log:       &l,
	}
}

func (u *generationUC) ListWorkflows(ctx context.Context) ([]string, error) {
	return u.workflows.List(ctx)
}

func (u *generationUC) Queue(ctx context.Context, req QueueRequest) (string, error) {
	defer logging.TraceDuration(u.log, "GenerationUC.Queue")()

	withImage := len(req.Image) > 0
	name := req.Workflow
	if name == "" {
		name = u.opts.DefaultWorkflow
		if withImage {
			name = u.opts.DefaultImageWorkflow
		}
	}
	tmpl, err := u.workflows.Load(ctx, name)
	if err != nil {
		return "", err
	}

	g, err := u.patcher.PatchTextPrompt(tmpl, req.Prompt, req.NegativePrompt)
	if err != nil {
		return "", err
	}

	var asset string
	if withImage {
		asset, err = u.uploadInput(ctx, req.Image)
		if err != nil {
			return "", err
		}
		if g, err = u.patcher.PatchImageReference(g, asset); err != nil {
			return "", err
		}
	}

	jobID, err := u.submitter.Submit(ctx, g, uuid.NewString(), asset)
	if err != nil {
		return "", err
	}
	if err := u.jobs.Record(ctx, jobID); err != nil {
		return "", fmt.Errorf("record prompt id: %w", err)
	}
	logging.With(logging.WithPromptID(ctx, jobID), u.log).Info().Str("workflow", name).Msg("generation queued")
	return jobID, nil
}

func (u *generationUC) uploadInput(ctx context.Context, raw []byte) (string, error) {
	return UploadInput(ctx, u.backend, raw)
}

// UploadInput normalises a conditioning image to PNG and hands it to the
// backend as a new input asset.
func UploadInput(ctx context.Context, backend adapter.GenerationBackend, raw []byte) (string, error) {
	data, err := toPNG(raw)
	if err != nil {
		return "", err
	}
	return backend.UploadImage(ctx, bytes.NewReader(data), adapter.UploadParams{
		Name:      uuid.NewString() + ".png",
		Type:      model.ImageTypeInput,
		Overwrite: false,
	})
}

func (u *generationUC) requireKnown(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("%w: empty prompt id", domain.ErrUnknownJob)
	}
	ok, err := u.jobs.Exists(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownJob, jobID)
	}
	return nil
}

func (u *generationUC) Progress(ctx context.Context, jobID string) (float64, error) {
	if err := u.requireKnown(ctx, jobID); err != nil {
		return 0, err
	}
	return u.tracker.ComputeProgress(ctx, jobID)
}

func (u *generationUC) FetchImage(ctx context.Context, jobID string) (string, error) {
	defer logging.TraceDuration(u.log, "GenerationUC.FetchImage")()

	if err := u.requireKnown(ctx, jobID); err != nil {
		return "", err
	}
	path, err := u.fetcher.FetchResult(ctx, jobID, true)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrNotReady, jobID)
	}

	key := filepath.Base(path)
	bucket, err := u.storage.Upload(ctx, path, key)
	if err != nil {
		return "", err
	}
	if err := u.images.Save(ctx, repository.NoTX, model.NewImageRecord(key, bucket, jobID)); err != nil {
		return "", fmt.Errorf("save image record: %w", err)
	}
	url, err := u.storage.PresignGet(ctx, key, u.opts.PresignTTL)
	if err != nil {
		return "", err
	}
	logging.With(logging.WithPromptID(ctx, jobID), u.log).Info().Str("object", key).Msg("image published")
	return url, nil
}
