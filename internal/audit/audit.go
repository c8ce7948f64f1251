// Package audit defines the structured authorization decision the core
// emits for every allow/deny. Storage of the trail is an external concern;
// the core only guarantees that each decision it makes is handed to an
// Emitter with enough context to reconstruct who asked for what and why it
// was answered the way it was.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Decision is one structured authorization outcome.
type Decision struct {
	Action    string // e.g. "oauth.token", "authz.require_scopes"
	ActorID   string
	ActorType string // "user" | "app_client" | "anonymous"
	Resource  string
	Decision  string // "allowed" | "denied"
	Reason    string // set on denial
	RequestID string
	At        time.Time
}

// Emitter receives decisions. Implementations must not block the request
// path on durable storage.
type Emitter interface {
	Emit(ctx context.Context, d Decision)
}

// LogEmitter writes decisions to structured logs. It is the default sink;
// a durable trail subscribes downstream of the log pipeline.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(ctx context.Context, d Decision) {
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}
	level := slog.LevelInfo
	if d.Decision == "denied" {
		level = slog.LevelWarn
	}
	e.logger.LogAttrs(ctx, level, "authz decision",
		slog.String("action", d.Action),
		slog.String("actor_id", d.ActorID),
		slog.String("actor_type", d.ActorType),
		slog.String("resource", d.Resource),
		slog.String("decision", d.Decision),
		slog.String("reason", d.Reason),
		slog.String("request_id", d.RequestID),
		slog.Time("at", d.At),
	)
}
