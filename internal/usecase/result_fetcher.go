package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/adapter"
	"comfy-gateway/internal/infra/logging"
	"comfy-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// TempSubdir holds preview images under the output directory.
const TempSubdir = "temp"

// ResultFetcher downloads a job's first generated image and stores it as PNG.
type ResultFetcher struct {
	backend   adapter.GenerationBackend
	outputDir string
	now       func() time.Time
	log       *zerolog.Logger
}

func NewResultFetcher(backend adapter.GenerationBackend, outputDir string, logger *zerolog.Logger) *ResultFetcher {
	l := logger.With().Str("component", "ResultFetcher").Logger()
	return &ResultFetcher{backend: backend, outputDir: outputDir, now: time.Now, log: &l}
}

// WithClock replaces the clock used for result file names.
func (f *ResultFetcher) WithClock(now func() time.Time) *ResultFetcher {
	f.now = now
	return f
}

func (f *ResultFetcher) OutputDir() string { return f.outputDir }

// Inspect picks the first image of the first output node that has any.
// Data is filled only for output images, or temp images when
// includePreviews is set. A nil result means the job has no history or no
// images yet.
func (f *ResultFetcher) Inspect(ctx context.Context, jobID string, includePreviews bool) (*model.GeneratedImage, error) {
	entry, found, err := f.backend.History(ctx, jobID)
	if err != nil || !found {
		return nil, err
	}
	nodeID, desc, ok := entry.FirstImage()
	if !ok {
		return nil, nil
	}

	res := &model.GeneratedImage{
		NodeID:   nodeID,
		FileName: desc.Filename,
		Type:     desc.Type,
		Source:   desc,
	}
	if !eligible(desc.Type, includePreviews) {
		return res, nil
	}
	data, err := f.backend.ViewImage(ctx, desc)
	if err != nil {
		return nil, err
	}
	res.Data = data
	return res, nil
}

func eligible(t model.ImageType, includePreviews bool) bool {
	return t == model.ImageTypeOutput || (includePreviews && t == model.ImageTypeTemp)
}

// FetchResult stores the job's image as <output>/image_<ts>.png (temp images
// under <output>/temp) and returns its absolute path. It returns "" when
// nothing is ready and also when writing the file failed; the latter is only
// logged.
func (f *ResultFetcher) FetchResult(ctx context.Context, jobID string, includePreviews bool) (string, error) {
	defer logging.TraceDuration(f.log, "ResultFetcher.FetchResult")()
	log := logging.With(logging.WithPromptID(ctx, jobID), f.log)

	res, err := f.Inspect(ctx, jobID, includePreviews)
	if err != nil {
		metrics.IncFetchResult("error")
		return "", err
	}
	if res == nil || res.Data == nil {
		metrics.IncFetchResult("not_ready")
		return "", nil
	}

	path, err := f.store(res)
	if err != nil {
		metrics.IncFetchResult("storage_error")
		log.Error().Err(err).Str("source", res.FileName).Msg("storing generated image failed")
		return "", nil
	}
	metrics.IncFetchResult("stored")
	log.Info().Str("path", path).Str("type", string(res.Type)).Msg("image stored")
	return path, nil
}

func (f *ResultFetcher) store(res *model.GeneratedImage) (string, error) {
	img, _, err := decodeImage(res.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	dir := f.outputDir
	if res.Type == model.ImageTypeTemp {
		dir = filepath.Join(dir, TempSubdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	path, err := filepath.Abs(filepath.Join(dir, model.ResultFileName(f.now())))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := encodePNG(file, img); err != nil {
		file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: encode png: %v", domain.ErrStorage, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return path, nil
}
