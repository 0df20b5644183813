//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubmissionCache_RecordAndExists(t *testing.T) {
	ctx := context.Background()
	cli := newMemClient()
	cache := NewSubmissionCache(cli, 2*time.Hour)

	ok, err := cache.Exists(ctx, "abc")
	if err != nil || ok {
		t.Fatalf("unknown id: ok=%v err=%v", ok, err)
	}

	if err := cache.Record(ctx, "abc"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if v := cli.values["prompt_id_abc"]; v != "abc" {
		t.Fatalf("unexpected stored value %q", v)
	}
	if exp := cli.expires["prompt_id_abc"]; time.Until(exp) < time.Hour+59*time.Minute {
		t.Fatalf("expected ~2h ttl, expires at %s", exp)
	}

	ok, err = cache.Exists(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("recorded id: ok=%v err=%v", ok, err)
	}
}

func TestSubmissionCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cli := newMemClient()
	base := time.Now()
	cli.now = func() time.Time { return base }
	cache := NewSubmissionCache(cli, 2*time.Hour)

	if err := cache.Record(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	cli.now = func() time.Time { return base.Add(2*time.Hour + time.Second) }
	if ok, _ := cache.Exists(ctx, "abc"); ok {
		t.Fatal("expired id must be rejected")
	}
}

func TestSubmissionCache_EmptyAndErrors(t *testing.T) {
	ctx := context.Background()
	cli := newMemClient()
	cache := NewSubmissionCache(cli, 0)

	if ok, err := cache.Exists(ctx, ""); ok || err != nil {
		t.Fatalf("empty id: ok=%v err=%v", ok, err)
	}

	boom := errors.New("connection refused")
	cli.failGet = boom
	if _, err := cache.Exists(ctx, "abc"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}
