//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersNormalizeLabels(t *testing.T) {
	before := testutil.ToFloat64(fetchResultsTotal.WithLabelValues("not_ready"))
	IncFetchResult("  NOT_READY ")
	after := testutil.ToFloat64(fetchResultsTotal.WithLabelValues("not_ready"))
	if after-before != 1 {
		t.Fatalf("expected increment by 1, got %v -> %v", before, after)
	}
}

func TestObserveComfyRequest(t *testing.T) {
	before := testutil.ToFloat64(comfyRequestsTotal.WithLabelValues("/history", "true"))
	ObserveComfyRequest("/History", 12, true)
	if got := testutil.ToFloat64(comfyRequestsTotal.WithLabelValues("/history", "true")); got != before+1 {
		t.Fatalf("got %v want %v", got, before+1)
	}
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	MustRegister()
	MustRegister()
}

func TestRegister_FreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register should skip duplicates: %v", err)
	}

	IncStorageUpload("S3", false)
	if got := testutil.ToFloat64(storageUploadsTotal.WithLabelValues("s3", "error")); got < 1 {
		t.Fatalf("storage error counter = %v", got)
	}
	n, err := testutil.GatherAndCount(reg, "comfy_gateway_storage_uploads_total")
	if err != nil || n == 0 {
		t.Fatalf("gathered %d series, err %v", n, err)
	}
}
