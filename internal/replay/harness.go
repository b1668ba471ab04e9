package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/persona-controller/internal/memory"
	"github.com/danielpatrickdp/persona-controller/internal/persona"
	"github.com/danielpatrickdp/persona-controller/internal/policy"
	"github.com/danielpatrickdp/persona-controller/internal/turn"
	"github.com/danielpatrickdp/persona-controller/internal/verify"
)

// #region scripted

// errPrefix marks an answer-script entry as a failing attempt.
const errPrefix = "ERR:"

// scriptedLoop replays answer-script entries, one per attempt.
type scriptedLoop struct {
	queue []string
}

func (l *scriptedLoop) Run(_ context.Context, _ string, _ float64) (turn.ToolLoopResult, error) {
	if len(l.queue) == 0 {
		return turn.ToolLoopResult{}, errors.New("answer script exhausted")
	}
	next := l.queue[0]
	l.queue = l.queue[1:]
	if msg, ok := strings.CutPrefix(next, errPrefix); ok {
		return turn.ToolLoopResult{}, errors.New(msg)
	}
	return turn.ToolLoopResult{
		FinalText:  next,
		Iterations: 1,
		Stop:       turn.StopReason{Kind: turn.StopCompleted},
	}, nil
}

// scriptedReflect returns the turn's fixed reflect output. An empty script
// fails the reflect call, which skips the writeback without touching the
// answer.
type scriptedReflect struct {
	output string
}

func (r scriptedReflect) ChatWithSystem(_ context.Context, _, _, _ string, _ float64) (string, error) {
	if r.output == "" {
		return "", errors.New("no reflect output scripted")
	}
	return r.output, nil
}

// echoBuilder passes the user text through unchanged.
type echoBuilder struct{}

func (echoBuilder) Build(_ context.Context, _, text string) (string, error) {
	return text, nil
}

// #endregion scripted

// #region result

// Result captures the outcome of replaying one turn.
type Result struct {
	TurnID    string
	Action    string // "answered" | "escalated"
	Writeback string // "committed" | "rejected" | "skipped" | "none"
	Answer    string
	Detail    string // escalation message when escalated
	VersionID string // active persona version after the turn
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTurns int
	Answered   int
	Escalated  int
	Committed  int
	Rejected   int
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalTurns: len(results)}
	for _, r := range results {
		switch r.Action {
		case "answered":
			s.Answered++
		case "escalated":
			s.Escalated++
		}
		switch r.Writeback {
		case "committed":
			s.Committed++
		case "rejected":
			s.Rejected++
		}
	}
	return s
}

// #endregion result

// #region harness

// Harness owns the stores and shared policy for one replay run. Each run
// starts from a fresh pair of SQLite files under workDir.
type Harness struct {
	fixture  *Fixture
	personas *persona.Store
	memories *memory.Store
	pol      *policy.Policy
	caps     verify.Caps
	logger   *slog.Logger
}

// NewHarness seeds fresh stores under workDir from the fixture start state.
func NewHarness(f *Fixture, workDir string, logger *slog.Logger) (*Harness, error) {
	if logger == nil {
		logger = slog.Default()
	}

	level, err := policy.ParseAutonomyLevel(f.Config.AutonomyLevel)
	if err != nil {
		return nil, fmt.Errorf("fixture config: %w", err)
	}

	caps := verify.Caps{MaxAttempts: f.Config.MaxAttempts, MaxRepairDepth: f.Config.MaxRepairDepth}
	if caps.MaxAttempts == 0 {
		caps = verify.DefaultCaps()
	}
	if err := caps.Validate(); err != nil {
		return nil, fmt.Errorf("fixture config: %w", err)
	}

	personas, err := persona.NewStore(
		filepath.Join(workDir, "persona.db"),
		filepath.Join(workDir, "persona_snapshot.json"),
	)
	if err != nil {
		return nil, fmt.Errorf("open persona store: %w", err)
	}
	if err := personas.Seed(f.StartState.ToState()); err != nil {
		personas.Close()
		return nil, fmt.Errorf("seed start state: %w", err)
	}

	memories, err := memory.NewStore(filepath.Join(workDir, "memory.db"))
	if err != nil {
		personas.Close()
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	return &Harness{
		fixture:  f,
		personas: personas,
		memories: memories,
		pol:      policy.New(level, f.Config.MaxActions, f.Config.DailyCostLimit, logger),
		caps:     caps,
		logger:   logger,
	}, nil
}

// Close releases both stores.
func (h *Harness) Close() {
	h.memories.Close()
	h.personas.Close()
}

// #endregion harness

// #region run

// Run replays every fixture turn in order through the full pipeline: the real
// orchestrator wrapped by the real verify/repair controller, with scripted
// model outputs. Policy counters accumulate across turns, so a fixture can
// script its own policy-limit escalations.
func (h *Harness) Run(ctx context.Context) ([]Result, Summary, error) {
	scopes := h.fixture.Config.WriteScopes
	if len(scopes) == 0 {
		scopes = []string{"self"}
	}

	results := make([]Result, 0, len(h.fixture.Turns))
	for _, ft := range h.fixture.Turns {
		res, err := h.runTurn(ctx, ft, scopes)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("turn %s: %w", ft.TurnID, err)
		}
		results = append(results, res)
	}
	return results, Summarize(results), nil
}

func (h *Harness) runTurn(ctx context.Context, ft FixtureTurn, scopes []string) (Result, error) {
	activeBefore, err := h.personas.ActiveVersionID()
	if err != nil {
		return Result{}, fmt.Errorf("active version: %w", err)
	}
	rejectedBefore, err := h.countRejections(ft.Scope)
	if err != nil {
		return Result{}, err
	}

	recorder := memory.NewRecorder(h.memories, memory.ScopePolicy{Scopes: toSet(scopes)}, h.logger)
	orch := turn.New(turn.Config{
		ReflectionEnabled: h.fixture.Config.ReflectionEnabled,
		WriteScopes:       scopes,
		Model:             "replay",
		ReflectModel:      "replay",
		Temperature:       h.fixture.Config.Temperature,
		TurnCost:          h.fixture.Config.TurnCost,
	}, turn.Deps{
		Policy:          h.pol,
		Recorder:        recorder,
		Consolidator:    memory.NewConsolidator(h.memories, memory.DefaultConsolidatorConfig(), h.logger),
		Persona:         h.personas,
		ContextBuilder:  echoBuilder{},
		ReflectProvider: scriptedReflect{output: ft.ReflectOutput},
		ToolLoop:        &scriptedLoop{queue: append([]string(nil), ft.AnswerScript...)},
		Logger:          h.logger,
	})

	controller := verify.NewController(h.caps, memory.NewAuditLog(recorder, ft.Scope), h.logger)
	resp, err := verify.Run(ctx, controller, func(ctx context.Context) (*turn.Response, error) {
		return orch.Run(ctx, turn.Request{Scope: ft.Scope, Text: ft.Prompt})
	})

	activeAfter, verErr := h.personas.ActiveVersionID()
	if verErr != nil {
		return Result{}, fmt.Errorf("active version: %w", verErr)
	}

	res := Result{TurnID: ft.TurnID, VersionID: activeAfter}
	if err != nil {
		var esc *verify.EscalationError
		if !errors.As(err, &esc) {
			return Result{}, err
		}
		res.Action = "escalated"
		res.Detail = esc.Error()
		res.Writeback = "none"
		return res, nil
	}

	res.Action = "answered"
	res.Answer = resp.Text
	res.Writeback, err = h.classifyWriteback(ft.Scope, activeBefore, activeAfter, rejectedBefore)
	return res, err
}

// classifyWriteback decides what the reflect/writeback path did to the state:
// a new active version means a commit, a fresh rejection audit event means
// the guard vetoed, otherwise the path was skipped or disabled.
func (h *Harness) classifyWriteback(scope, before, after string, rejectedBefore int) (string, error) {
	if !h.fixture.Config.ReflectionEnabled {
		return "none", nil
	}
	if after != before {
		return "committed", nil
	}
	rejectedAfter, err := h.countRejections(scope)
	if err != nil {
		return "", err
	}
	if rejectedAfter > rejectedBefore {
		return "rejected", nil
	}
	return "skipped", nil
}

func (h *Harness) countRejections(scope string) (int, error) {
	events, err := h.memories.ListRecent(scope, 1000)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	n := 0
	for _, ev := range events {
		if ev.EventType == memory.EventWritebackRejected {
			n++
		}
	}
	return n, nil
}

func toSet(scopes []string) map[string]bool {
	set := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		set[s] = true
	}
	return set
}

// #endregion run
