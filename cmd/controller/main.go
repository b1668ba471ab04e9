package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielpatrickdp/persona-controller/internal/config"
	"github.com/danielpatrickdp/persona-controller/internal/guard"
	"github.com/danielpatrickdp/persona-controller/internal/llm"
	"github.com/danielpatrickdp/persona-controller/internal/memory"
	"github.com/danielpatrickdp/persona-controller/internal/persona"
	"github.com/danielpatrickdp/persona-controller/internal/policy"
	"github.com/danielpatrickdp/persona-controller/internal/turn"
	"github.com/danielpatrickdp/persona-controller/internal/verify"
)

const answerSystemPrompt = `You are a careful, concise assistant. Answer the
user's message using the provided context. Do not invent facts.`

// #region main
func main() {
	configFlag := flag.String("config", envOr("PERSONA_CONFIG", ""), "path to config.yaml")
	flag.Parse()

	path, err := config.Find(*configFlag)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	level, err := policy.ParseAutonomyLevel(cfg.Turn.AutonomyLevel)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	personas, err := persona.NewStore(
		filepath.Join(cfg.DataDir, "persona.db"),
		filepath.Join(cfg.DataDir, cfg.PersonaFile),
	)
	if err != nil {
		log.Fatalf("failed to open persona store: %v", err)
	}
	defer personas.Close()

	// Ensure initial self-state exists
	canonical, err := personas.LoadCanonical()
	if err != nil {
		log.Fatalf("failed to load self-state: %v", err)
	}
	if canonical == nil {
		log.Println("No self-state found, seeding initial state...")
		if err := personas.Seed(initialState(cfg)); err != nil {
			log.Fatalf("failed to seed self-state: %v", err)
		}
	}

	memories, err := memory.NewStore(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		log.Fatalf("failed to open memory store: %v", err)
	}
	defer memories.Close()

	scope := cfg.Turn.WriteScopes[0]
	scopeSet := make(map[string]bool, len(cfg.Turn.WriteScopes))
	for _, s := range cfg.Turn.WriteScopes {
		scopeSet[s] = true
	}

	recorder := memory.NewRecorder(memories, memory.ScopePolicy{Scopes: scopeSet}, logger)
	pol := policy.New(level, cfg.Limits.MaxActions, cfg.Limits.DailyCostLimit, logger)
	client := llm.NewOllamaClient(cfg.Models.OllamaURL)

	orch := turn.New(turn.Config{
		ReflectionEnabled: cfg.Turn.ReflectionEnabled,
		WriteScopes:       cfg.Turn.WriteScopes,
		Model:             cfg.Models.Answer,
		ReflectModel:      cfg.Models.Reflect,
		Temperature:       cfg.Turn.Temperature,
		TurnCost:          cfg.Turn.TurnCost,
	}, turn.Deps{
		Policy:          pol,
		Recorder:        recorder,
		Consolidator:    memory.NewConsolidator(memories, memory.DefaultConsolidatorConfig(), logger),
		Persona:         personas,
		ContextBuilder:  turn.NewStateContextBuilder(personas, memories, 10),
		ReflectProvider: client,
		ToolLoop:        turn.NewSingleShotLoop(client, answerSystemPrompt, cfg.Models.Answer),
		Logger:          logger,
	})

	caps := verify.Caps{MaxAttempts: cfg.Verify.MaxAttempts, MaxRepairDepth: cfg.Verify.MaxRepairDepth}
	controller := verify.NewController(caps, memory.NewAuditLog(recorder, scope), logger)

	fmt.Println("Persona Controller ready.")
	fmt.Printf("  Data: %s | Ollama: %s | Autonomy: %s\n", cfg.DataDir, cfg.Models.OllamaURL, level)
	fmt.Println("Type a message (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}
		if text == "/state" {
			printState(personas)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		resp, err := verify.Run(ctx, controller, func(ctx context.Context) (*turn.Response, error) {
			return orch.Run(ctx, turn.Request{Scope: scope, Text: text})
		})
		cancel()
		if err != nil {
			log.Printf("turn failed: %v", err)
			continue
		}

		fmt.Printf("\n%s\n\n", resp.Text)
		fmt.Printf("[%s] planned=%v iterations=%d actions=%d cost=%.2f\n",
			resp.TurnID, resp.Planned, resp.Iterations, pol.ActionsUsed(), pol.CostUsed())
	}
}

// #endregion main

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

func initialState(cfg config.Config) persona.State {
	now := time.Now().UTC().Format(time.RFC3339)
	return persona.State{
		Immutable: guard.ImmutableHeader{
			SchemaVersion:          cfg.Persona.SchemaVersion,
			IdentityPrinciplesHash: cfg.Persona.IdentityPrinciplesHash,
			SafetyPosture:          cfg.Persona.SafetyPosture,
		},
		Header: guard.HeaderWriteback{
			CurrentObjective:     cfg.Persona.InitialObjective,
			OpenLoops:            []string{},
			NextActions:          []string{},
			Commitments:          []string{},
			RecentContextSummary: "new session",
			LastUpdatedAt:        now,
		},
	}
}

func printState(personas *persona.Store) {
	st, err := personas.LoadCanonical()
	if err != nil || st == nil {
		fmt.Println("no self-state available")
		return
	}
	fmt.Printf("objective:   %s\n", st.Header.CurrentObjective)
	fmt.Printf("open loops:  %s\n", strings.Join(st.Header.OpenLoops, "; "))
	fmt.Printf("next:        %s\n", strings.Join(st.Header.NextActions, "; "))
	fmt.Printf("commitments: %s\n", strings.Join(st.Header.Commitments, "; "))
	fmt.Printf("summary:     %s\n", st.Header.RecentContextSummary)
	fmt.Printf("updated:     %s\n", st.Header.LastUpdatedAt)
}

// #endregion helpers
