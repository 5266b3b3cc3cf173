package models

import "time"

// RateLimitWindow tracks the last actions for a scope. Rows are created lazily
// on the first recorded action and never deleted.
type RateLimitWindow struct {
	Scope          string     `db:"scope" json:"scope"`
	LastActionAt   *time.Time `db:"last_action_at" json:"last_action_at,omitempty"`
	LastTopLevelAt *time.Time `db:"last_top_level_at" json:"last_top_level_at,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// ScopeGlobal is the scope shared by every action regardless of target.
const ScopeGlobal = "global"
