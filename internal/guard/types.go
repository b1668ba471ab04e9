package guard

import "fmt"

// #region immutable-header

// ImmutableHeader is the portion of the persisted self-state that may only be
// carried forward unchanged through the writeback path. Values are always
// sourced from the canonical store, never from a candidate payload.
type ImmutableHeader struct {
	SchemaVersion          string `json:"schema_version"`
	IdentityPrinciplesHash string `json:"identity_principles_hash"`
	SafetyPosture          string `json:"safety_posture"`
}

// #endregion immutable-header

// #region header-writeback

// HeaderWriteback is the mutable projection of the self-state header that the
// guard may approve.
type HeaderWriteback struct {
	CurrentObjective     string   `json:"current_objective"`
	OpenLoops            []string `json:"open_loops"`
	NextActions          []string `json:"next_actions"`
	Commitments          []string `json:"commitments"`
	RecentContextSummary string   `json:"recent_context_summary"`
	LastUpdatedAt        string   `json:"last_updated_at"`
}

// #endregion header-writeback

// #region payload

// Payload is a full validated writeback candidate.
type Payload struct {
	Header       HeaderWriteback
	MemoryAppend []string
}

// #endregion payload

// #region reject-code

// RejectCode enumerates the closed set of rejection categories.
type RejectCode string

const (
	RejectNotObject         RejectCode = "not_object"
	RejectUnknownField      RejectCode = "unknown_field"
	RejectMissingField      RejectCode = "missing_field"
	RejectImmutableMismatch RejectCode = "immutable_field_mismatch"
	RejectFieldType         RejectCode = "field_type"
	RejectFieldEmpty        RejectCode = "field_empty"
	RejectFieldTooLong      RejectCode = "field_too_long"
	RejectTooManyItems      RejectCode = "too_many_items"
	RejectPoisonPattern     RejectCode = "poison_pattern"
	RejectBadTimestamp      RejectCode = "bad_timestamp"
)

// #endregion reject-code

// #region rejection

// Rejection explains why a candidate payload was refused. Reason text is
// sanitized: it names the field and limit but never echoes candidate content.
type Rejection struct {
	Code  RejectCode
	Field string
	Limit int
}

// Reason renders the sanitized human-readable rejection reason.
func (r Rejection) Reason() string {
	switch r.Code {
	case RejectNotObject:
		return "payload is not a JSON object"
	case RejectUnknownField:
		if r.Field == "" {
			return "unknown field not in allow-list"
		}
		return fmt.Sprintf("unknown field %q not in allow-list", r.Field)
	case RejectMissingField:
		return fmt.Sprintf("required field %q is missing", r.Field)
	case RejectImmutableMismatch:
		return fmt.Sprintf("immutable field mismatch on %q", r.Field)
	case RejectFieldType:
		return fmt.Sprintf("field %q has wrong type", r.Field)
	case RejectFieldEmpty:
		return fmt.Sprintf("field %q is empty after trimming", r.Field)
	case RejectFieldTooLong:
		return fmt.Sprintf("field %q exceeds limit of %d characters", r.Field, r.Limit)
	case RejectTooManyItems:
		return fmt.Sprintf("field %q exceeds limit of %d items", r.Field, r.Limit)
	case RejectPoisonPattern:
		return fmt.Sprintf("field %q matches a blocked pattern", r.Field)
	case RejectBadTimestamp:
		return fmt.Sprintf("field %q is not a valid RFC3339 timestamp", r.Field)
	}
	return fmt.Sprintf("rejected field %q", r.Field)
}

// #endregion rejection

// #region verdict

// Verdict is the terminal result of one validation call. Either Accepted is
// true and Payload holds sanitized values, or Rejection is set. Never both.
type Verdict struct {
	Accepted  bool
	Payload   Payload
	Rejection *Rejection
}

func accepted(p Payload) Verdict {
	return Verdict{Accepted: true, Payload: p}
}

func rejected(code RejectCode, field string, limit int) Verdict {
	return Verdict{Rejection: &Rejection{Code: code, Field: field, Limit: limit}}
}

// #endregion verdict
