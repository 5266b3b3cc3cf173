package models

import "time"

type Draft struct {
	ID            string     `db:"id" json:"id"`
	Platform      string     `db:"platform" json:"platform"`
	Target        string     `db:"target" json:"target"`
	Kind          string     `db:"kind" json:"kind"`
	Title         string     `db:"title" json:"title,omitempty"`
	Body          string     `db:"body" json:"body"`
	ParentRef     string     `db:"parent_ref" json:"parent_ref,omitempty"`
	ParentFlair   string     `db:"parent_flair" json:"parent_flair,omitempty"`
	SourceRef     string     `db:"source_ref" json:"source_ref,omitempty"`
	Status        string     `db:"status" json:"status"`
	Reasons       []string   `db:"reasons" json:"reasons,omitempty"`
	ScheduledFor  *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`
	PublishedRef  string     `db:"published_ref" json:"published_ref,omitempty"`
	FailureReason string     `db:"failure_reason" json:"failure_reason,omitempty"`
	EditHistory   []string   `db:"edit_history" json:"edit_history,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	DraftStatusPendingReview = "pending_review"
	DraftStatusApproved      = "approved"
	DraftStatusScheduled     = "scheduled"
	DraftStatusRejected      = "rejected"
	DraftStatusSkipped       = "skipped"
	DraftStatusPosted        = "posted"
	DraftStatusFailed        = "failed"
)

const (
	PlatformReddit  = "reddit"
	PlatformBluesky = "bluesky"
)

const (
	DraftKindPost    = "post"
	DraftKindComment = "comment"
)

// IsTopLevel reports whether publishing this draft counts as a top-level post
// for cooldown purposes.
func (d *Draft) IsTopLevel() bool {
	return d.Kind == DraftKindPost
}

// Eligible reports whether the draft may be published at t: it is approved, or
// scheduled with a due timestamp.
func (d *Draft) Eligible(t time.Time) bool {
	switch d.Status {
	case DraftStatusApproved:
		return true
	case DraftStatusScheduled:
		return d.ScheduledFor != nil && !d.ScheduledFor.After(t)
	default:
		return false
	}
}
