// Package audit records security-relevant actions as structured log entries.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/obs"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// LogEvent writes an audit entry enriched with request and identity context.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	out := make([]zap.Field, 0, len(fields)+5)
	out = append(out, zap.String("type", "audit"), zap.String("event", event))
	if rid := requestIDFromContext(ctx); rid != "" {
		out = append(out, zap.String("request_id", rid))
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		out = append(out, zap.String("user_id", id.UserID))
		if id.OrgID != "" {
			out = append(out, zap.String("org_id", id.OrgID))
		}
	}
	out = append(out, fields...)
	obs.Logger().Info("audit", out...)
	return nil
}

// Record is LogEvent for call sites that have nothing useful to do with the error.
func Record(ctx context.Context, event string, fields ...zap.Field) {
	_ = LogEvent(ctx, event, fields...)
}
