// Package turn runs one complete turn: scope enforcement, inbound autosave,
// context building, policy and budget checks, the answer path, the optional
// reflect/writeback, and response persistence. The user-visible answer is the
// one invariant the pipeline protects above all: nothing downstream of the
// answer may take it down.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/persona-controller/internal/budget"
	"github.com/danielpatrickdp/persona-controller/internal/guard"
	"github.com/danielpatrickdp/persona-controller/internal/memory"
	"github.com/danielpatrickdp/persona-controller/internal/persona"
	"github.com/danielpatrickdp/persona-controller/internal/policy"
)

// #region config

// Config holds the per-orchestrator turn settings.
type Config struct {
	ReflectionEnabled bool
	WriteScopes       []string
	Model             string
	ReflectModel      string
	Temperature       float64
	TurnCost          float64
}

// Deps are the collaborators one orchestrator drives. Policy is the only one
// shared across concurrent turns; everything else is either stateless or
// internally synchronized by its store.
type Deps struct {
	Policy          *policy.Policy
	Recorder        *memory.Recorder
	Consolidator    *memory.Consolidator
	Persona         PersonaStore
	ContextBuilder  ContextBuilder
	ReflectProvider ChatProvider
	Planner         Planner // optional
	ToolLoop        ToolLoop
	Logger          *slog.Logger
}

// #endregion config

// #region orchestrator-struct

// Orchestrator is the top-level coordinator for a single turn.
type Orchestrator struct {
	config Config
	scopes map[string]bool
	deps   Deps
	logger *slog.Logger
}

// New creates a fully wired orchestrator.
func New(config Config, deps Deps) *Orchestrator {
	scopes := make(map[string]bool, len(config.WriteScopes))
	for _, s := range config.WriteScopes {
		scopes[s] = true
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{config: config, scopes: scopes, deps: deps, logger: logger}
}

// #endregion orchestrator-struct

// #region run

// Run executes one turn. Each call gets fresh call accounting; a retried
// attempt never shares counters with a previous one.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	turnID := uuid.New().String()

	// Scope enforcement is fail-fast: nothing is written and no model call
	// happens for a scope the caller may not write.
	if !o.scopes[req.Scope] {
		return nil, fmt.Errorf("%w: write scope %q not permitted", policy.ErrDenied, req.Scope)
	}

	o.deps.Recorder.Record(memory.Event{
		EntityScope:  req.Scope,
		EventType:    memory.EventMessageIn,
		Content:      req.Text,
		SourceClass:  "user",
		PrivacyLevel: "private",
		Confidence:   1.0,
		Importance:   0.3,
		Provenance:   "turn:" + turnID,
	})

	prompt, err := o.deps.ContextBuilder.Build(ctx, req.Scope, req.Text)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	// The only step that can deny the turn on policy grounds rather than
	// log-and-continue.
	if err := o.deps.Policy.ConsumeActionAndCost(o.config.TurnCost); err != nil {
		return nil, err
	}

	acct := budget.NewAccounting(o.config.ReflectionEnabled)
	if err := acct.ConsumeAnswerCall(); err != nil {
		return nil, err
	}

	temperature := o.deps.Policy.ClampTemperature(o.config.Temperature)

	resp := &Response{TurnID: turnID}
	answered := false
	// The plan heuristic runs over the raw user text, before retrieved
	// context is injected.
	if o.deps.Planner != nil && LooksMultiStep(req.Text) {
		report, planErr := o.deps.Planner.Plan(ctx, prompt, temperature)
		if planErr == nil && report != nil && len(report.Steps) >= 3 && strings.TrimSpace(report.FinalText) != "" {
			resp.Text = report.FinalText
			resp.Planned = true
			answered = true
		} else {
			o.logger.Debug("planner fallback to tool loop", "turn", turnID, "error", planErr)
		}
	}
	if !answered {
		result, loopErr := o.deps.ToolLoop.Run(ctx, prompt, temperature)
		if loopErr != nil {
			return nil, fmt.Errorf("tool loop: %w", loopErr)
		}
		switch result.Stop.Kind {
		case StopError:
			return nil, fmt.Errorf("tool loop stopped: %s", result.Stop.Detail)
		case StopHookBlocked:
			return nil, fmt.Errorf("tool loop blocked: %s", result.Stop.Detail)
		}
		resp.Text = result.FinalText
		resp.Iterations = result.Iterations
	}

	if o.config.ReflectionEnabled {
		o.runWriteback(ctx, acct, turnID, req, resp.Text)
	}

	o.deps.Recorder.Record(memory.Event{
		EntityScope:  req.Scope,
		EventType:    memory.EventMessageOut,
		Content:      resp.Text,
		SourceClass:  "agent",
		PrivacyLevel: "private",
		Confidence:   1.0,
		Importance:   0.3,
		Provenance:   "turn:" + turnID,
	})
	o.deps.Consolidator.Trigger(req.Scope)

	return resp, nil
}

// #endregion run

// #region writeback

const reflectSystemPrompt = `You maintain your own persistent state header.
Given the current state and the latest exchange, emit ONE JSON object and
nothing else, shaped exactly as:
{"state_header": {"schema_version": ..., "identity_principles_hash": ...,
"safety_posture": ..., "current_objective": ..., "open_loops": [...],
"next_actions": [...], "commitments": [...], "recent_context_summary": ...,
"last_updated_at": ...}, "memory_append": [...]}
Carry schema_version, identity_principles_hash, and safety_posture forward
unchanged. Keep every field short. memory_append is optional.`

// runWriteback runs the reflect call and, when the guard accepts, persists
// the new state. Every failure mode here is logged and swallowed: the
// already-produced answer is never blocked or overwritten.
func (o *Orchestrator) runWriteback(ctx context.Context, acct *budget.Accounting, turnID string, req Request, answer string) {
	canonical, err := o.deps.Persona.LoadCanonical()
	if err != nil {
		o.logger.Warn("writeback skipped: load canonical state", "turn", turnID, "error", err)
		return
	}
	if canonical == nil {
		o.logger.Warn("writeback skipped: no canonical state", "turn", turnID)
		return
	}

	if err := acct.ConsumeReflectCall(); err != nil {
		o.logger.Warn("writeback skipped: reflect budget", "turn", turnID, "error", err)
		return
	}

	raw, err := o.deps.ReflectProvider.ChatWithSystem(ctx, reflectSystemPrompt,
		o.reflectMessage(canonical, req.Text, answer), o.config.ReflectModel, 0)
	if err != nil {
		o.logger.Warn("writeback skipped: reflect call failed", "turn", turnID, "error", err)
		return
	}

	trimmed := strings.TrimSpace(raw)
	if !json.Valid([]byte(trimmed)) {
		o.logger.Warn("writeback skipped: reflect output is not JSON", "turn", turnID)
		return
	}

	verdict := guard.Validate([]byte(trimmed), canonical.Immutable)
	if !verdict.Accepted {
		reason := verdict.Rejection.Reason()
		o.logger.Warn("writeback rejected", "turn", turnID, "reason", reason)
		o.deps.Recorder.Record(memory.Event{
			EntityScope: req.Scope,
			EventType:   memory.EventWritebackRejected,
			Content:     reason,
			SourceClass: "system",
			Confidence:  1.0,
			Importance:  0.8,
			Provenance:  "turn:" + turnID,
		})
		return
	}

	next := persona.State{Immutable: canonical.Immutable, Header: verdict.Payload.Header}
	if err := o.deps.Persona.PersistAndSync(next); err != nil {
		o.logger.Warn("writeback persistence failed", "turn", turnID, "error", err)
		return
	}

	for _, note := range verdict.Payload.MemoryAppend {
		o.deps.Recorder.Record(memory.Event{
			EntityScope:  req.Scope,
			EventType:    memory.EventReflection,
			Content:      note,
			SourceClass:  "agent",
			PrivacyLevel: "private",
			Confidence:   0.7,
			Importance:   0.6,
			Provenance:   "turn:" + turnID,
		})
	}
	o.logger.Info("writeback committed", "turn", turnID)
}

func (o *Orchestrator) reflectMessage(canonical *persona.State, userText, answer string) string {
	stateJSON, _ := json.Marshal(canonical)
	var b strings.Builder
	b.WriteString("Current state:\n")
	b.Write(stateJSON)
	b.WriteString("\n\nUser said:\n")
	b.WriteString(userText)
	b.WriteString("\n\nYou answered:\n")
	b.WriteString(answer)
	b.WriteString("\n\nEmit the updated state JSON now.")
	return b.String()
}

// #endregion writeback
