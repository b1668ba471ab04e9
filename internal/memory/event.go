package memory

import "time"

// #region event-type

// EventType classifies a memory event row.
type EventType string

const (
	EventMessageIn         EventType = "message_in"
	EventMessageOut        EventType = "message_out"
	EventReflection        EventType = "reflection"
	EventEscalation        EventType = "escalation"
	EventWritebackRejected EventType = "writeback_rejected"
	EventConsolidation     EventType = "consolidation"
)

// #endregion event-type

// #region event

// Event is one durable memory entry.
type Event struct {
	ID           string
	EntityScope  string
	SlotKey      string
	EventType    EventType
	Content      string
	SourceClass  string // "user" | "agent" | "system"
	PrivacyLevel string // "private" | "shared"
	Confidence   float64
	Importance   float64
	SourceRef    string
	Provenance   string
	CreatedAt    time.Time
}

// #endregion event

// #region write-policy

// WritePolicy is the authoritative gate in front of every memory write on the
// turn path. A rejection skips the write; it never fails the turn.
type WritePolicy interface {
	Allow(ev Event) (bool, string)
}

// AllowAll is the permissive default gate.
type AllowAll struct{}

// Allow accepts every event.
func (AllowAll) Allow(Event) (bool, string) { return true, "" }

// ScopePolicy admits writes only for a fixed set of entity scopes.
type ScopePolicy struct {
	Scopes map[string]bool
}

// Allow rejects events whose entity scope is not in the allowed set.
func (p ScopePolicy) Allow(ev Event) (bool, string) {
	if p.Scopes[ev.EntityScope] {
		return true, ""
	}
	return false, "entity scope not writable: " + ev.EntityScope
}

// #endregion write-policy
