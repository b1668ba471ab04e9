// Package config handles controller configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// #region types

// Config holds all controller configuration.
type Config struct {
	DataDir     string        `yaml:"data_dir"`
	PersonaFile string        `yaml:"persona_file"`
	LogLevel    string        `yaml:"log_level"`
	Models      ModelsConfig  `yaml:"models"`
	Turn        TurnConfig    `yaml:"turn"`
	Limits      LimitsConfig  `yaml:"limits"`
	Verify      VerifyConfig  `yaml:"verify"`
	Persona     PersonaConfig `yaml:"persona"`
}

// ModelsConfig defines provider routing.
type ModelsConfig struct {
	OllamaURL string `yaml:"ollama_url"`
	Answer    string `yaml:"answer"`
	Reflect   string `yaml:"reflect"`
}

// TurnConfig bounds a single turn.
type TurnConfig struct {
	AutonomyLevel     string   `yaml:"autonomy_level"` // read_only | supervised | full
	ReflectionEnabled bool     `yaml:"reflection_enabled"`
	Temperature       float64  `yaml:"temperature"`
	TurnCost          float64  `yaml:"turn_cost"`
	WriteScopes       []string `yaml:"write_scopes"`
}

// LimitsConfig holds the shared rate limits. Zero disables a limit.
type LimitsConfig struct {
	MaxActions     int     `yaml:"max_actions"`
	DailyCostLimit float64 `yaml:"daily_cost_limit"`
}

// VerifyConfig bounds the verify/repair loop.
type VerifyConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	MaxRepairDepth int `yaml:"max_repair_depth"`
}

// PersonaConfig seeds the initial self-state.
type PersonaConfig struct {
	SchemaVersion          string `yaml:"schema_version"`
	IdentityPrinciplesHash string `yaml:"identity_principles_hash"`
	SafetyPosture          string `yaml:"safety_posture"`
	InitialObjective       string `yaml:"initial_objective"`
}

// #endregion types

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:     ".",
		PersonaFile: "persona.json",
		LogLevel:    "info",
		Models: ModelsConfig{
			OllamaURL: "http://localhost:11434",
			Answer:    "qwen3:14b",
			Reflect:   "qwen3:14b",
		},
		Turn: TurnConfig{
			AutonomyLevel:     "supervised",
			ReflectionEnabled: true,
			Temperature:       0.7,
			TurnCost:          0.01,
			WriteScopes:       []string{"self"},
		},
		Limits: LimitsConfig{
			MaxActions:     500,
			DailyCostLimit: 10.0,
		},
		Verify: VerifyConfig{
			MaxAttempts:    3,
			MaxRepairDepth: 2,
		},
		Persona: PersonaConfig{
			SchemaVersion:          "1",
			IdentityPrinciplesHash: "unset",
			SafetyPosture:          "strict",
			InitialObjective:       "assist the operator",
		},
	}
}

// #endregion defaults

// #region search

// DefaultSearchPaths returns the config file search order.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "persona-controller", "config.yaml"))
	}
	paths = append(paths, "/etc/persona-controller/config.yaml")
	return paths
}

// Find locates a config file. If explicit is non-empty it must exist;
// otherwise the first existing search path wins. An empty return with no
// error means no file was found and defaults apply.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// #endregion search

// #region load

// Load reads a YAML config file over the defaults and validates it. An empty
// path returns validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural invariants the rest of the system relies on.
func (c Config) Validate() error {
	if c.Verify.MaxAttempts < 1 {
		return fmt.Errorf("verify.max_attempts must be >= 1, got %d", c.Verify.MaxAttempts)
	}
	if c.Verify.MaxRepairDepth >= c.Verify.MaxAttempts {
		return fmt.Errorf("verify.max_repair_depth (%d) must be < verify.max_attempts (%d)",
			c.Verify.MaxRepairDepth, c.Verify.MaxAttempts)
	}
	switch c.Turn.AutonomyLevel {
	case "read_only", "supervised", "full":
	default:
		return fmt.Errorf("unknown turn.autonomy_level %q", c.Turn.AutonomyLevel)
	}
	if len(c.Turn.WriteScopes) == 0 {
		return fmt.Errorf("turn.write_scopes must not be empty")
	}
	return nil
}

// #endregion load
