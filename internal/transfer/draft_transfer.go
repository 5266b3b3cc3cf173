package transfer

type DraftCreation struct {
	Platform    string `json:"platform"`
	Target      string `json:"target"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	ParentRef   string `json:"parent_ref"`
	ParentFlair string `json:"parent_flair"`
	SourceRef   string `json:"source_ref"`
}

type ApproveRequest struct {
	ScheduledFor string `json:"scheduled_for"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type EditRequest struct {
	Body string `json:"body"`
}

type SettingsUpdate struct {
	KillSwitch bool `json:"kill_switch"`
}
