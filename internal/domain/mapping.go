package domain

import "time"

// MappingTables is the persisted form of the classification tables:
// raw action types to families, optimization goals to allowed families
// in priority order, and the per-goal default family. Refreshed as a
// whole, never patched row by row.
type MappingTables struct {
	Actions      map[string]ResultFamily   `json:"actions"`
	Goals        map[string][]ResultFamily `json:"goals"`
	GoalDefaults map[string]ResultFamily   `json:"goal_defaults"`

	UpdatedAt time.Time `json:"updated_at"`
}
