package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event kinds emitted by the orchestrator.
const (
	KindFlowStarted    = "flow_started"
	KindFlowCompleted  = "flow_completed"
	KindFlowFailed     = "flow_failed"
	KindSessionCreated = "vault_session_created"
	KindSessionLocked  = "vault_session_locked"
)

// Event is one audit record. Detail carries only minimal non-secret
// context (provider names, opaque error codes); tokens and provider
// error text never appear here.
type Event struct {
	ID      string
	Actor   string
	Kind    string
	Success bool
	Detail  map[string]string
	At      time.Time
}

// Sink receives audit events. Implementations must not block the
// request path for long; the zerolog sink just writes a log line.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// NewEvent stamps an event with an ID and timestamp.
func NewEvent(actor, kind string, success bool, detail map[string]string) Event {
	return Event{
		ID:      uuid.New().String(),
		Actor:   actor,
		Kind:    kind,
		Success: success,
		Detail:  detail,
		At:      time.Now(),
	}
}

var _ Sink = (*ZerologSink)(nil)

// ZerologSink writes audit events as structured log lines.
type ZerologSink struct {
	logger zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{logger: logger}
}

func (s *ZerologSink) Record(_ context.Context, event Event) {
	level := zerolog.InfoLevel
	if !event.Success {
		level = zerolog.WarnLevel
	}
	entry := s.logger.WithLevel(level)
	for key, value := range event.Detail {
		entry = entry.Str(key, value)
	}
	entry.
		Str("audit_id", event.ID).
		Str("actor", event.Actor).
		Str("kind", event.Kind).
		Bool("success", event.Success).
		Time("at", event.At).
		Msg("audit event")
}
