package models

import "time"

// ActivityEntry is one immutable row of the transition ledger. Entries are
// written in the same transaction as the draft state change they document.
type ActivityEntry struct {
	ID        int64     `db:"id" json:"id"`
	DraftID   string    `db:"draft_id" json:"draft_id"`
	FromState string    `db:"from_state" json:"from_state"`
	ToState   string    `db:"to_state" json:"to_state"`
	Actor     string    `db:"actor" json:"actor"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	ActorSystem = "system"
	ActorHuman  = "human"
)
