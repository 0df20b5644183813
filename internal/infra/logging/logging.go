package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"comfy-gateway/internal/config"

	"github.com/rs/zerolog"
)

// Service is stamped on every record.
const Service = "comfy-gateway"

// New writes JSON records to stdout, or colored console lines when
// cfg.Format is "console" or dev is set.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return NewWithWriter(os.Stdout, cfg, dev)
}

func NewWithWriter(w io.Writer, cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if dev || strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Str("service", Service).Logger()

	// Sampling passes one in every 100 records below warn level.
	if cfg.Sampling && !dev {
		logger = logger.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BasicSampler{N: 100},
			DebugSampler: &zerolog.BasicSampler{N: 100},
			InfoSampler:  &zerolog.BasicSampler{N: 100},
		})
	}
	return &logger
}

// fields are the request-scoped values carried in a context.
type fields struct {
	traceID, userID, promptID string
}

type ctxKey struct{}

func fromContext(ctx context.Context) fields {
	f, _ := ctx.Value(ctxKey{}).(fields)
	return f
}

func update(ctx context.Context, fn func(*fields)) context.Context {
	f := fromContext(ctx)
	fn(&f)
	return context.WithValue(ctx, ctxKey{}, f)
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *fields) { f.traceID = id })
}

func WithUserID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *fields) { f.userID = id })
}

func WithPromptID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *fields) { f.promptID = id })
}

func TraceID(ctx context.Context) string { return fromContext(ctx).traceID }

func UserID(ctx context.Context) string { return fromContext(ctx).userID }

// With returns base enriched with whatever ids ctx carries.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	f := fromContext(ctx)
	if f == (fields{}) {
		return base
	}
	c := base.With()
	for _, kv := range [][2]string{{"trace_id", f.traceID}, {"user_id", f.userID}, {"prompt_id", f.promptID}} {
		if kv[1] != "" {
			c = c.Str(kv[0], kv[1])
		}
	}
	l := c.Logger()
	return &l
}

// TraceDuration logs entry and exit of name at trace level:
//
//	defer logging.TraceDuration(logger, "ResultFetcher.FetchResult")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	if logger.GetLevel() > zerolog.TraceLevel {
		return func() {}
	}
	start := time.Now()
	logger.Trace().Str("method", name).Msg("enter")
	return func() {
		logger.Trace().Str("method", name).Dur("took", time.Since(start)).Msg("exit")
	}
}

// Redact masks identifiers such as usernames outside dev mode, keeping a
// short prefix for correlation.
func Redact(s string, dev bool) string {
	switch {
	case dev:
		return s
	case len(s) <= 4:
		return "***"
	default:
		return s[:2] + strings.Repeat("*", len(s)-2)
	}
}
