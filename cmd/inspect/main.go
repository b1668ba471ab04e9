package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/persona-controller/internal/memory"
	"github.com/danielpatrickdp/persona-controller/internal/persona"
)

// #region main

func main() {
	dataDir := flag.String("data", "", "path to the controller data directory")
	last := flag.Int("last", 20, "show N most recent versions or events")
	events := flag.Bool("events", false, "list memory events instead of persona versions")
	scope := flag.String("scope", "self", "entity scope for event listing")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dataDir == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --data path/to/data [--last N] [--events] [--scope name] [--json]")
		os.Exit(2)
	}

	var err error
	if *events {
		err = runEventMode(*dataDir, *scope, *last, *jsonOut)
	} else {
		err = runVersionMode(*dataDir, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region version-mode

type versionRow struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Active    bool   `json:"active"`
	Objective string `json:"objective"`
	UpdatedAt string `json:"updated_at"`
	CreatedAt string `json:"created_at"`
}

func runVersionMode(dataDir string, last int, jsonOut bool) error {
	store, err := persona.NewStore(filepath.Join(dataDir, "persona.db"), "")
	if err != nil {
		return fmt.Errorf("open persona store: %w", err)
	}
	defer store.Close()

	activeID, err := store.ActiveVersionID()
	if err != nil {
		return err
	}
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	rows := make([]versionRow, len(versions))
	for i, v := range versions {
		rows[i] = versionRow{
			VersionID: v.VersionID,
			ParentID:  v.ParentID,
			Active:    v.VersionID == activeID,
			Objective: v.State.Header.CurrentObjective,
			UpdatedAt: v.State.Header.LastUpdatedAt,
			CreatedAt: v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	fmt.Printf("%-38s| %-6s| %-40s| %s\n", "Version", "Active", "Objective", "Created")
	for _, r := range rows {
		active := ""
		if r.Active {
			active = "*"
		}
		fmt.Printf("%-38s| %-6s| %-40s| %s\n", r.VersionID, active, truncate(r.Objective, 40), r.CreatedAt)
	}
	return nil
}

// #endregion version-mode

// #region event-mode

type eventRow struct {
	EventID    string  `json:"event_id"`
	EventType  string  `json:"event_type"`
	Content    string  `json:"content"`
	Source     string  `json:"source_class"`
	Importance float64 `json:"importance"`
	Provenance string  `json:"provenance,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func runEventMode(dataDir, scope string, last int, jsonOut bool) error {
	store, err := memory.NewStore(filepath.Join(dataDir, "memory.db"))
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()

	events, err := store.ListRecent(scope, last)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events found")
		return nil
	}

	rows := make([]eventRow, len(events))
	for i, ev := range events {
		rows[i] = eventRow{
			EventID:    ev.ID,
			EventType:  string(ev.EventType),
			Content:    ev.Content,
			Source:     ev.SourceClass,
			Importance: ev.Importance,
			Provenance: ev.Provenance,
			CreatedAt:  ev.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	fmt.Printf("%-20s| %-8s| %-50s| %s\n", "Type", "Source", "Content", "Created")
	for _, r := range rows {
		fmt.Printf("%-20s| %-8s| %-50s| %s\n", r.EventType, r.Source, truncate(r.Content, 50), r.CreatedAt)
	}
	return nil
}

// #endregion event-mode

// #region helpers

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// #endregion helpers
