package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/infra/adapters/comfy"

	"github.com/schollz/progressbar/v3"
)

// newBar renders to w. max < 0 gives a spinner until the first progress
// event sets the real step count.
func newBar(w io.Writer, max int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

// followEvents drives bar from the event stream until promptID finishes.
// The stream closing after ctx ends is reported as ctx's error.
func followEvents(ctx context.Context, events <-chan comfy.Event, promptID string, bar *progressbar.ProgressBar) error {
	for ev := range events {
		d, err := ev.Decode()
		if err != nil {
			continue
		}
		mine := d.PromptID == promptID
		switch ev.Type {
		case comfy.EventExecutionStart:
			if mine {
				bar.Describe("running")
			}
		case comfy.EventExecuting:
			if mine && d.Node != nil {
				bar.Describe("node " + *d.Node)
			}
		case comfy.EventProgress:
			// older backends omit prompt_id on progress events
			if (mine || d.PromptID == "") && d.Max > 0 {
				bar.ChangeMax(d.Max)
				_ = bar.Set(d.Value)
			}
		case comfy.EventExecutionError:
			if mine {
				return fmt.Errorf("execution failed: %s", d.ExceptionMessage)
			}
		case comfy.EventExecutionInterrupted:
			if mine {
				return errors.New("execution interrupted")
			}
		}
		if ev.Done(promptID) {
			return bar.Finish()
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("waiting for %s: %w", promptID, err)
	}
	return fmt.Errorf("%w: event stream closed before %s finished", domain.ErrBackendUnavailable, promptID)
}

type progressFunc func(ctx context.Context, promptID string) (float64, error)

// pollProgress samples compute every interval until it reports 100.
func pollProgress(ctx context.Context, compute progressFunc, promptID string, interval time.Duration, bar *progressbar.ProgressBar) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p, err := compute(ctx, promptID)
		if err != nil {
			return err
		}
		_ = bar.Set(int(p))
		if p >= 100 {
			return bar.Finish()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
