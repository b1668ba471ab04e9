package turn

import (
	"context"

	"github.com/danielpatrickdp/persona-controller/internal/persona"
)

// #region request-response

// Request is one inbound message targeting an entity scope.
type Request struct {
	Scope string
	Text  string
}

// Response is the turn's user-visible result.
type Response struct {
	TurnID     string
	Text       string
	Planned    bool // answered via the multi-step planner
	Iterations int  // tool-loop iterations, 0 when planned
}

// #endregion request-response

// #region stop-reason

// StopKind enumerates why a tool loop stopped.
type StopKind string

const (
	StopCompleted      StopKind = "completed"
	StopMaxIterations  StopKind = "max_iterations"
	StopRateLimited    StopKind = "rate_limited"
	StopApprovalDenied StopKind = "approval_denied"
	StopError          StopKind = "error"
	StopHookBlocked    StopKind = "hook_blocked"
)

// StopReason carries the stop kind plus detail text for the Error and
// HookBlocked variants.
type StopReason struct {
	Kind   StopKind
	Detail string
}

// #endregion stop-reason

// #region interfaces

// ContextBuilder assembles the enriched prompt for the answer path.
type ContextBuilder interface {
	Build(ctx context.Context, scope, text string) (string, error)
}

// ChatProvider is a single system+user chat call. Reflect calls always use
// temperature 0.
type ChatProvider interface {
	ChatWithSystem(ctx context.Context, systemPrompt, message, model string, temperature float64) (string, error)
}

// ToolLoopResult is the outcome of the default single-shot-or-tool execution
// strategy.
type ToolLoopResult struct {
	FinalText  string
	Iterations int
	Stop       StopReason
}

// ToolLoop executes a prompt through the default answer strategy.
type ToolLoop interface {
	Run(ctx context.Context, prompt string, temperature float64) (ToolLoopResult, error)
}

// PlanStep is one executed step of a multi-step plan.
type PlanStep struct {
	Description string
	Output      string
}

// PlanReport is a completed plan execution.
type PlanReport struct {
	Steps     []PlanStep
	FinalText string
}

// Planner generates and executes a multi-step plan for a prompt. A nil
// report, an error, or a report with fewer than three steps all cause a
// silent fallback to the tool loop.
type Planner interface {
	Plan(ctx context.Context, prompt string, temperature float64) (*PlanReport, error)
}

// PersonaStore is the canonical self-state persistence consumed by the
// writeback path.
type PersonaStore interface {
	LoadCanonical() (*persona.State, error)
	PersistAndSync(candidate persona.State) error
}

// #endregion interfaces
