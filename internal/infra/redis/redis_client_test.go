//go:build !integration

package redis

import (
	"testing"

	"comfy-gateway/internal/config"
)

func TestOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		addr     string
		password string
		db       int
		wantErr  bool
	}{
		{name: "host port", cfg: config.RedisConfig{URL: "localhost:6379", DB: 2}, addr: "localhost:6379", db: 2},
		{name: "url", cfg: config.RedisConfig{URL: "redis://:secret@cache:6380/3"}, addr: "cache:6380", password: "secret", db: 3},
		{name: "explicit overrides url", cfg: config.RedisConfig{URL: "redis://:secret@cache:6380/3", Password: "other", DB: 5}, addr: "cache:6380", password: "other", db: 5},
		{name: "bad url", cfg: config.RedisConfig{URL: "redis://cache:6380/notadb"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := options(&tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if opts.Addr != tc.addr || opts.Password != tc.password || opts.DB != tc.db {
				t.Errorf("got addr=%s password=%s db=%d", opts.Addr, opts.Password, opts.DB)
			}
		})
	}
}
