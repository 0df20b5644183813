//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/usecase"
)

func historyWith(outputs map[string]model.NodeOutput) *model.HistoryEntry {
	return &model.HistoryEntry{
		Prompt:  json.RawMessage(`[0, {"1":{},"2":{}}]`),
		Outputs: outputs,
		Status:  model.JobStatus{Completed: true},
	}
}

func img(name string, typ model.ImageType) model.ImageDescriptor {
	return model.ImageDescriptor{Filename: name, Type: typ}
}

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func newFetcher(t *testing.T, b *MockBackend) (*usecase.ResultFetcher, string) {
	t.Helper()
	dir := t.TempDir()
	return usecase.NewResultFetcher(b, dir, newTestLogger()).WithClock(func() time.Time { return fixedNow }), dir
}

func TestProgressTracker(t *testing.T) {
	b := NewMockBackend()
	b.Histories["running"] = &model.HistoryEntry{
		Prompt: json.RawMessage(`[1, {"1":{},"2":{},"3":{},"4":{}}]`),
		Status: model.JobStatus{Messages: []model.StatusMessage{
			{Event: model.EventExecutionCached, Payload: json.RawMessage(`{"nodes":["1","2"]}`)},
			{Event: model.EventExecuting, Payload: json.RawMessage(`{"nodes":["3"]}`)},
		}},
	}
	b.Histories["done"] = historyWith(nil)
	tr := usecase.NewProgressTracker(b, newTestLogger())
	ctx := context.Background()

	for id, want := range map[string]float64{"running": 75, "done": 100, "absent": 0} {
		got, err := tr.ComputeProgress(ctx, id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if got != want {
			t.Errorf("%s: progress = %v, want %v", id, got, want)
		}
	}

	b.HistErr = domain.ErrBackendUnavailable
	if _, err := tr.ComputeProgress(ctx, "running"); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestResultFetcher_Inspect(t *testing.T) {
	b := NewMockBackend()
	b.Images["a.png"] = pngBytes()
	b.Images["p.png"] = pngBytes()
	b.Histories["sorted"] = historyWith(map[string]model.NodeOutput{
		"10": {Images: []model.ImageDescriptor{img("late.png", model.ImageTypeOutput)}},
		"9":  {Images: []model.ImageDescriptor{img("a.png", model.ImageTypeOutput), img("b.png", model.ImageTypeOutput)}},
		"2":  {},
	})
	b.Histories["preview"] = historyWith(map[string]model.NodeOutput{
		"5": {Images: []model.ImageDescriptor{img("p.png", model.ImageTypeTemp)}},
	})
	f, _ := newFetcher(t, b)
	ctx := context.Background()

	res, err := f.Inspect(ctx, "sorted", false)
	if err != nil || res == nil {
		t.Fatalf("Inspect = %v, %v", res, err)
	}
	if res.NodeID != "9" || res.FileName != "a.png" || res.Data == nil {
		t.Errorf("picked %+v", res)
	}

	t.Run("temp without previews is not downloaded", func(t *testing.T) {
		b.Viewed = nil
		res, err := f.Inspect(ctx, "preview", false)
		if err != nil || res == nil {
			t.Fatalf("Inspect = %v, %v", res, err)
		}
		if res.Data != nil || len(b.Viewed) != 0 {
			t.Errorf("temp image fetched without previews")
		}
	})

	t.Run("temp with previews", func(t *testing.T) {
		res, err := f.Inspect(ctx, "preview", true)
		if err != nil || res == nil || res.Data == nil {
			t.Fatalf("Inspect = %+v, %v", res, err)
		}
	})

	t.Run("absent job", func(t *testing.T) {
		res, err := f.Inspect(ctx, "nope", true)
		if err != nil || res != nil {
			t.Fatalf("Inspect = %v, %v", res, err)
		}
	})
}

func TestResultFetcher_FetchResult(t *testing.T) {
	b := NewMockBackend()
	b.Images["out.jpg"] = jpegBytes()
	b.Images["prev.png"] = pngBytes()
	b.Images["junk.png"] = []byte("not an image")
	b.Histories["out"] = historyWith(map[string]model.NodeOutput{
		"9": {Images: []model.ImageDescriptor{img("out.jpg", model.ImageTypeOutput)}},
	})
	b.Histories["prev"] = historyWith(map[string]model.NodeOutput{
		"9": {Images: []model.ImageDescriptor{img("prev.png", model.ImageTypeTemp)}},
	})
	b.Histories["junk"] = historyWith(map[string]model.NodeOutput{
		"9": {Images: []model.ImageDescriptor{img("junk.png", model.ImageTypeOutput)}},
	})
	b.Histories["empty"] = historyWith(map[string]model.NodeOutput{})
	f, dir := newFetcher(t, b)
	ctx := context.Background()

	t.Run("output image is stored as png", func(t *testing.T) {
		path, err := f.FetchResult(ctx, "out", false)
		if err != nil {
			t.Fatal(err)
		}
		want := filepath.Join(dir, "image_20240309140507.png")
		if abs, _ := filepath.Abs(want); path != abs {
			t.Fatalf("path = %q, want %q", path, abs)
		}
		fh, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer fh.Close()
		if _, err := png.Decode(fh); err != nil {
			t.Errorf("stored file is not png: %v", err)
		}
	})

	t.Run("temp image goes to temp subdir", func(t *testing.T) {
		path, err := f.FetchResult(ctx, "prev", true)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(filepath.Dir(path)) != usecase.TempSubdir {
			t.Errorf("path = %q", path)
		}
	})

	t.Run("temp image without previews", func(t *testing.T) {
		if path, err := f.FetchResult(ctx, "prev", false); err != nil || path != "" {
			t.Errorf("FetchResult = %q, %v", path, err)
		}
	})

	t.Run("nothing ready", func(t *testing.T) {
		for _, id := range []string{"empty", "absent"} {
			if path, err := f.FetchResult(ctx, id, true); err != nil || path != "" {
				t.Errorf("%s: FetchResult = %q, %v", id, path, err)
			}
		}
	})

	t.Run("undecodable bytes are a silent storage failure", func(t *testing.T) {
		if path, err := f.FetchResult(ctx, "junk", true); err != nil || path != "" {
			t.Errorf("FetchResult = %q, %v", path, err)
		}
	})

	t.Run("backend errors propagate", func(t *testing.T) {
		b.ViewErr = domain.ErrBackendUnavailable
		defer func() { b.ViewErr = nil }()
		if _, err := f.FetchResult(ctx, "out", false); !errors.Is(err, domain.ErrBackendUnavailable) {
			t.Errorf("expected backend error, got %v", err)
		}
	})
}
