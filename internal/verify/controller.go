package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// #region caps

// Caps bounds one verify/repair loop. Loaded from configuration per turn,
// immutable for the loop's lifetime.
type Caps struct {
	MaxAttempts    int
	MaxRepairDepth int
}

// DefaultCaps returns the standard loop bounds.
func DefaultCaps() Caps {
	return Caps{MaxAttempts: 3, MaxRepairDepth: 2}
}

// Validate checks the structural invariants on the caps.
func (c Caps) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.MaxRepairDepth >= c.MaxAttempts {
		return fmt.Errorf("max_repair_depth (%d) must be < max_attempts (%d)", c.MaxRepairDepth, c.MaxAttempts)
	}
	return nil
}

// #endregion caps

// #region escalation

// EscalationReason enumerates why the loop terminated without success.
type EscalationReason string

const (
	ReasonMaxAttempts    EscalationReason = "MaxAttemptsReached"
	ReasonMaxRepairDepth EscalationReason = "MaxRepairDepthReached"
	ReasonNonRetryable   EscalationReason = "NonRetryableFailure"
)

// Escalation is the auditable record of a terminal verify/repair failure.
type Escalation struct {
	Reason         EscalationReason
	Attempts       int
	RepairDepth    int
	MaxAttempts    int
	MaxRepairDepth int
	FailureClass   FailureClass
	LastError      string // sanitized
}

// EscalationError is the terminal error surfaced to the caller. Its message
// is deterministic and structured for audit, not for retry by the caller.
type EscalationError struct {
	Escalation Escalation
}

func (e *EscalationError) Error() string {
	esc := e.Escalation
	return fmt.Sprintf(
		"turn escalated: reason=%s attempts=%d/%d repair_depth=%d/%d failure_class=%s last_error=%q",
		esc.Reason, esc.Attempts, esc.MaxAttempts, esc.RepairDepth, esc.MaxRepairDepth,
		esc.FailureClass, esc.LastError,
	)
}

// #endregion escalation

// #region audit-sink

// AuditSink receives escalation records for the audit trail. Append failures
// are logged but never block the escalation itself.
type AuditSink interface {
	AppendEscalation(ctx context.Context, esc Escalation) error
}

// #endregion audit-sink

// #region controller

// Controller runs turn attempts sequentially under the caps. No attempt
// begins before the previous one's error is classified.
type Controller struct {
	caps   Caps
	audit  AuditSink
	logger *slog.Logger
}

// NewController creates a verify/repair controller. audit may be nil.
func NewController(caps Caps, audit AuditSink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{caps: caps, audit: audit, logger: logger}
}

// #endregion controller

// #region run

// Run executes exec until it succeeds or the loop escalates. Attempts
// increment every iteration unconditionally; repair depth increments only on
// a retry decision. Escalation precedence: attempts cap, then repair-depth
// cap, then non-retryable failure.
func Run[T any](ctx context.Context, c *Controller, exec func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := 0
	repairDepth := 0

	for {
		attempts++
		result, err := exec(ctx)
		if err == nil {
			return result, nil
		}

		analysis := Analyze(err)
		c.logger.Warn("turn attempt failed",
			"attempt", attempts,
			"repair_depth", repairDepth,
			"failure_class", string(analysis.Class),
			"retryable", analysis.Retryable,
			"error", err,
		)

		var reason EscalationReason
		switch {
		case attempts >= c.caps.MaxAttempts:
			reason = ReasonMaxAttempts
		case repairDepth >= c.caps.MaxRepairDepth:
			reason = ReasonMaxRepairDepth
		case !analysis.Retryable:
			reason = ReasonNonRetryable
		default:
			repairDepth++
			continue
		}

		esc := Escalation{
			Reason:         reason,
			Attempts:       attempts,
			RepairDepth:    repairDepth,
			MaxAttempts:    c.caps.MaxAttempts,
			MaxRepairDepth: c.caps.MaxRepairDepth,
			FailureClass:   analysis.Class,
			LastError:      sanitizeError(err),
		}
		if c.audit != nil {
			if auditErr := c.audit.AppendEscalation(ctx, esc); auditErr != nil {
				c.logger.Warn("escalation audit append failed", "error", auditErr)
			}
		}
		return zero, &EscalationError{Escalation: esc}
	}
}

// #endregion run

// #region sanitize

const maxSanitizedErrorLen = 240

// sanitizeError collapses whitespace and truncates so the escalation message
// stays inspectable regardless of what the provider returned.
func sanitizeError(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	runes := []rune(msg)
	if len(runes) > maxSanitizedErrorLen {
		return string(runes[:maxSanitizedErrorLen]) + "..."
	}
	return msg
}

// #endregion sanitize
