package memory

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/danielpatrickdp/persona-controller/internal/verify"
)

// #region recorder

// Recorder is the best-effort write boundary for the turn path: every event
// passes the write-policy gate first, and neither a gate rejection nor a
// storage failure ever propagates. The gate is treated as authoritative and
// fail-closed.
type Recorder struct {
	store  *Store
	gate   WritePolicy
	logger *slog.Logger
}

// NewRecorder wraps a store with a gate. A nil gate allows everything.
func NewRecorder(store *Store, gate WritePolicy, logger *slog.Logger) *Recorder {
	if gate == nil {
		gate = AllowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, gate: gate, logger: logger}
}

// Record appends one event, logging and continuing on gate rejection or
// storage failure.
func (r *Recorder) Record(ev Event) {
	if ok, reason := r.gate.Allow(ev); !ok {
		r.logger.Warn("memory write rejected by policy gate",
			"scope", ev.EntityScope,
			"event_type", string(ev.EventType),
			"reason", reason,
		)
		return
	}
	if err := r.store.AppendEvent(ev); err != nil {
		r.logger.Warn("memory write failed",
			"scope", ev.EntityScope,
			"event_type", string(ev.EventType),
			"error", err,
		)
	}
}

// #endregion recorder

// #region audit-log

// AuditLog adapts the store to the verify controller's audit sink. Escalation
// records are serialized as JSON event content so they stay inspectable.
type AuditLog struct {
	recorder *Recorder
	scope    string
}

// NewAuditLog creates an audit sink writing escalations under one scope.
func NewAuditLog(recorder *Recorder, scope string) *AuditLog {
	return &AuditLog{recorder: recorder, scope: scope}
}

// AppendEscalation records one escalation audit event.
func (a *AuditLog) AppendEscalation(_ context.Context, esc verify.Escalation) error {
	content, err := json.Marshal(esc)
	if err != nil {
		return err
	}
	a.recorder.Record(Event{
		EntityScope: a.scope,
		EventType:   EventEscalation,
		Content:     string(content),
		SourceClass: "system",
		Confidence:  1.0,
		Importance:  0.9,
		Provenance:  "verify_repair",
	})
	return nil
}

// #endregion audit-log
