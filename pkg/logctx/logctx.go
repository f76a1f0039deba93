package logctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ctxKey string

const (
	LoggerKey  = "logger"
	TraceIDKey = "traceID"

	loggerCtxKey  ctxKey = LoggerKey
	traceIDCtxKey ctxKey = TraceIDKey
)

// FromGin returns a request-scoped logger from gin.Context if present,
// otherwise returns the provided base logger.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if l, ok := c.Get(LoggerKey); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			return lg
		}
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns the logger stored in ctx, or base enriched with the trace id
// when only that is known.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	if lg, ok := ctx.Value(loggerCtxKey).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	if tid := TraceID(ctx); tid != "" {
		return base.With("trace_id", tid)
	}
	return base
}

// WithLogger stores lg in ctx.
func WithLogger(ctx context.Context, lg *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, lg)
}

// With returns ctx carrying the ctx logger enriched with kv, plus that logger.
func With(ctx context.Context, base *zap.SugaredLogger, kv ...interface{}) (context.Context, *zap.SugaredLogger) {
	lg := FromCtx(ctx, base).With(kv...)
	return WithLogger(ctx, lg), lg
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDCtxKey, traceID)
}

func TraceID(ctx context.Context) string {
	tid, _ := ctx.Value(traceIDCtxKey).(string)
	return tid
}
