// Package policy holds the security policy shared across concurrent turns:
// the configured autonomy level, its sampling-temperature band, and the
// internally synchronized action and cost counters. The handle is passed
// explicitly through turn parameters, never accessed as a global.
package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// #region autonomy

// AutonomyLevel is the configured trust tier for the agent.
type AutonomyLevel string

const (
	AutonomyReadOnly   AutonomyLevel = "read_only"
	AutonomySupervised AutonomyLevel = "supervised"
	AutonomyFull       AutonomyLevel = "full"
)

// ParseAutonomyLevel maps a config string to an AutonomyLevel.
func ParseAutonomyLevel(s string) (AutonomyLevel, error) {
	switch AutonomyLevel(s) {
	case AutonomyReadOnly, AutonomySupervised, AutonomyFull:
		return AutonomyLevel(s), nil
	}
	return "", fmt.Errorf("unknown autonomy level %q", s)
}

// #endregion autonomy

// #region temperature-band

// TemperatureBand is the [Min, Max] sampling-temperature range allowed for an
// autonomy level.
type TemperatureBand struct {
	Min float64
	Max float64
}

var bands = map[AutonomyLevel]TemperatureBand{
	AutonomyReadOnly:   {Min: 0.0, Max: 0.4},
	AutonomySupervised: {Min: 0.2, Max: 1.0},
	AutonomyFull:       {Min: 0.2, Max: 1.2},
}

// BandFor returns the temperature band for the given autonomy level.
func BandFor(level AutonomyLevel) TemperatureBand {
	if b, ok := bands[level]; ok {
		return b
	}
	return bands[AutonomySupervised]
}

// #endregion temperature-band

// #region denial

// ErrDenied marks a policy denial. Denials are fatal to the turn and are
// never retried.
var ErrDenied = errors.New("policy denied")

// #endregion denial

// #region policy-struct

// Policy is the shared security policy handle. Safe for concurrent use.
type Policy struct {
	level  AutonomyLevel
	logger *slog.Logger

	mu             sync.Mutex
	maxActions     int
	actionsUsed    int
	dailyCostLimit float64
	costUsed       float64
}

// New creates a policy for the given autonomy level and rate limits.
// maxActions <= 0 or dailyCostLimit <= 0 disables the respective limit.
func New(level AutonomyLevel, maxActions int, dailyCostLimit float64, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		level:          level,
		logger:         logger,
		maxActions:     maxActions,
		dailyCostLimit: dailyCostLimit,
	}
}

// #endregion policy-struct

// #region consume

// ConsumeActionAndCost spends one action and the given cost against the
// shared limits. The returned error text identifies which limit fired.
func (p *Policy) ConsumeActionAndCost(cost float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxActions > 0 && p.actionsUsed+1 > p.maxActions {
		return fmt.Errorf("%w: action limit exceeded (%d/%d)", ErrDenied, p.actionsUsed+1, p.maxActions)
	}
	if p.dailyCostLimit > 0 && p.costUsed+cost > p.dailyCostLimit {
		return fmt.Errorf("%w: daily cost limit exceeded (%.2f/%.2f)", ErrDenied, p.costUsed+cost, p.dailyCostLimit)
	}
	p.actionsUsed++
	p.costUsed += cost
	return nil
}

// #endregion consume

// #region accessors

// EffectiveAutonomyLevel returns the configured trust tier.
func (p *Policy) EffectiveAutonomyLevel() AutonomyLevel {
	return p.level
}

// SelectedTemperatureBand returns the band for the effective autonomy level.
func (p *Policy) SelectedTemperatureBand() TemperatureBand {
	return BandFor(p.level)
}

// ActionsUsed returns the number of actions consumed so far.
func (p *Policy) ActionsUsed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actionsUsed
}

// CostUsed returns the total cost consumed so far.
func (p *Policy) CostUsed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.costUsed
}

// #endregion accessors

// #region clamp

// ClampTemperature clamps the requested value into the band for the effective
// autonomy level. A diagnostic is emitted only when clamping changed the
// value.
func (p *Policy) ClampTemperature(requested float64) float64 {
	band := p.SelectedTemperatureBand()
	clamped := requested
	if clamped < band.Min {
		clamped = band.Min
	}
	if clamped > band.Max {
		clamped = band.Max
	}
	if clamped != requested {
		p.logger.Info("temperature clamped",
			"requested", requested,
			"clamped", clamped,
			"band_min", band.Min,
			"band_max", band.Max,
			"autonomy", string(p.level),
		)
	}
	return clamped
}

// #endregion clamp
