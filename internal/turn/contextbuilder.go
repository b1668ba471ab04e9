package turn

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/persona-controller/internal/memory"
)

// #region context-builder

// RecentLister is the slice of the memory store the builder reads.
type RecentLister interface {
	ListRecent(scope string, limit int) ([]memory.Event, error)
}

// StateContextBuilder enriches the user text with the current self-state
// header and the most recent memory events for the scope.
type StateContextBuilder struct {
	personas PersonaStore
	memories RecentLister
	recent   int
}

// NewStateContextBuilder creates the default prompt builder. recent bounds
// how many memory events are injected.
func NewStateContextBuilder(personas PersonaStore, memories RecentLister, recent int) *StateContextBuilder {
	if recent <= 0 {
		recent = 10
	}
	return &StateContextBuilder{personas: personas, memories: memories, recent: recent}
}

// Build assembles the enriched prompt. A missing self-state or an unreadable
// memory store degrades to the bare user text rather than failing the turn.
func (b *StateContextBuilder) Build(_ context.Context, scope, text string) (string, error) {
	var sb strings.Builder

	if st, err := b.personas.LoadCanonical(); err == nil && st != nil {
		sb.WriteString("Current objective: ")
		sb.WriteString(st.Header.CurrentObjective)
		sb.WriteString("\n")
		if st.Header.RecentContextSummary != "" {
			sb.WriteString("Recent context: ")
			sb.WriteString(st.Header.RecentContextSummary)
			sb.WriteString("\n")
		}
	}

	if events, err := b.memories.ListRecent(scope, b.recent); err == nil && len(events) > 0 {
		sb.WriteString("Recent events:\n")
		// ListRecent is newest first; replay oldest first for the model.
		for i := len(events) - 1; i >= 0; i-- {
			ev := events[i]
			fmt.Fprintf(&sb, "- [%s] %s\n", ev.EventType, ev.Content)
		}
	}

	if sb.Len() == 0 {
		return text, nil
	}
	sb.WriteString("\nUser message:\n")
	sb.WriteString(text)
	return sb.String(), nil
}

// #endregion context-builder
