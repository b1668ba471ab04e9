package memory

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// #region config

// ConsolidatorConfig bounds the background consolidation pass.
type ConsolidatorConfig struct {
	Threshold     int     // events since last marker before a pass runs
	RetainRecent  int     // newest autosave rows kept regardless of importance
	MaxImportance float64 // autosaves at or above this importance are never pruned
}

// DefaultConsolidatorConfig returns the standard consolidation bounds.
func DefaultConsolidatorConfig() ConsolidatorConfig {
	return ConsolidatorConfig{
		Threshold:     32,
		RetainRecent:  64,
		MaxImportance: 0.7,
	}
}

// #endregion config

// #region consolidator

// Consolidator compacts a scope's autosave history in the background.
// Trigger is fire-and-forget: the caller gets no handle to await or cancel
// the pass; failures are logged and have no effect on the turn result. This
// is a deliberately unsupervised side effect, not a pattern to copy.
type Consolidator struct {
	store  *Store
	config ConsolidatorConfig
	logger *slog.Logger
	group  singleflight.Group
}

// NewConsolidator creates a consolidator over the given store.
func NewConsolidator(store *Store, config ConsolidatorConfig, logger *slog.Logger) *Consolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{store: store, config: config, logger: logger}
}

// Trigger dispatches a consolidation pass for the scope and returns
// immediately. Concurrent triggers for the same scope are deduplicated.
func (c *Consolidator) Trigger(scope string) {
	go func() {
		_, err, _ := c.group.Do(scope, func() (interface{}, error) {
			return nil, c.RunOnce(scope)
		})
		if err != nil {
			c.logger.Warn("consolidation failed", "scope", scope, "error", err)
		}
	}()
}

// RunOnce performs one synchronous consolidation pass. It is a no-op below
// the event threshold.
func (c *Consolidator) RunOnce(scope string) error {
	pending, err := c.store.CountSinceConsolidation(scope)
	if err != nil {
		return err
	}
	if pending < c.config.Threshold {
		return nil
	}

	pruned, err := c.store.PruneAutosaves(scope, c.config.RetainRecent, c.config.MaxImportance)
	if err != nil {
		return err
	}

	err = c.store.AppendEvent(Event{
		EntityScope: scope,
		EventType:   EventConsolidation,
		Content:     fmt.Sprintf("consolidated %d events, pruned %d autosaves", pending, pruned),
		SourceClass: "system",
		Confidence:  1.0,
		Importance:  0.5,
		Provenance:  "consolidator",
	})
	if err != nil {
		return err
	}

	c.logger.Info("consolidation pass complete", "scope", scope, "events", pending, "pruned", pruned)
	return nil
}

// #endregion consolidator
