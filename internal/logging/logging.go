// Package logging builds the zap logger and turns bus events into log lines.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	eventbus "github.com/hanpama/blogql/internal/eventbus"
	events "github.com/hanpama/blogql/internal/events"
	reqid "github.com/hanpama/blogql/internal/reqid"
)

type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a logger writing to stderr. Format is "json" or "console".
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}

	zc := zap.NewProductionConfig()
	switch cfg.Format {
	case "", "json":
	case "console":
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("log format %q: want json or console", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	return zc.Build()
}

// Subscribe logs bus events with l:
//   - finished HTTP requests at info,
//   - GraphQL operations at debug, or warn when they produced errors,
//   - loader batches and SQL statements at debug, failures and missing keys
//     at warn.
//
// The returned function removes the subscriptions.
func Subscribe(l *zap.Logger) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			l.Info("http request",
				zap.String("method", e.Request.Method),
				zap.String("path", e.Request.URL.Path),
				zap.Int("status", e.Status),
				zap.Int("operations", e.Operations),
				zap.Duration("duration", e.Duration),
				requestID(ctx),
			)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			fields := []zap.Field{
				zap.String("operation", e.OperationName),
				zap.String("type", e.OperationType),
				zap.Duration("duration", e.Duration),
				requestID(ctx),
			}
			if len(e.Errors) == 0 {
				l.Debug("graphql operation", fields...)
				return
			}
			fields = append(fields, zap.Errors("errors", e.Errors), zap.Strings("codes", e.Codes))
			l.Warn("graphql operation failed", fields...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.LoaderBatch) {
			fields := []zap.Field{
				zap.String("loader", e.Loader),
				zap.Int("keys", e.Keys),
				zap.Int("missing", e.Missing),
				zap.Duration("duration", e.Duration),
				requestID(ctx),
			}
			switch {
			case e.Err != nil:
				l.Warn("loader batch failed", append(fields, zap.Error(e.Err))...)
			case e.Missing > 0:
				l.Warn("loader keys not found", fields...)
			default:
				l.Debug("loader batch", fields...)
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.Query) {
			fields := []zap.Field{
				zap.String("sql", e.SQL),
				zap.Int("args", len(e.Args)),
				zap.Int64("rows", e.Rows),
				zap.Duration("duration", e.Duration),
				requestID(ctx),
			}
			if e.Err != nil {
				l.Warn("sql failed", append(fields, zap.Error(e.Err))...)
				return
			}
			l.Debug("sql", fields...)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func requestID(ctx context.Context) zap.Field {
	if id, ok := reqid.FromContext(ctx); ok {
		return zap.String("request_id", id)
	}
	return zap.Skip()
}
