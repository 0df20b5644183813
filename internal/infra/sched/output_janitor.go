package sched

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"comfy-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// OutputJanitor periodically deletes generated images from the local output
// directory (and its temp subdirectory) once they are older than maxAge.
type OutputJanitor struct {
	dirs     []string
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	log      *zerolog.Logger
}

func NewOutputJanitor(outputDir, tempSubdir string, interval, maxAge time.Duration, logger *zerolog.Logger) *OutputJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	l := logger.With().Str("component", "OutputJanitor").Logger()
	return &OutputJanitor{
		dirs:     []string{outputDir, filepath.Join(outputDir, tempSubdir)},
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		log:      &l,
	}
}

func (j *OutputJanitor) Run(ctx context.Context) error {
	j.log.Info().Dur("interval", j.interval).Dur("max_age", j.maxAge).Msg("Starting output janitor")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Stopping output janitor")
			return ctx.Err()
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep removes expired *.png files and returns how many were deleted.
func (j *OutputJanitor) Sweep(ctx context.Context) int {
	cutoff := j.now().Add(-j.maxAge)
	n := 0
	for _, dir := range j.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				j.log.Error().Err(err).Str("dir", dir).Msg("read output dir")
			}
			continue
		}
		for _, e := range entries {
			if ctx.Err() != nil {
				return n
			}
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if err := os.Remove(p); err != nil {
				j.log.Warn().Err(err).Str("path", p).Msg("remove expired image")
				continue
			}
			n++
		}
	}
	if n > 0 {
		metrics.AddImagesCleaned(n)
		j.log.Info().Int("count", n).Msg("expired images removed")
	}
	return n
}
