package models

import "time"

// TimeoutStrategy governs what happens when a turn's response window lapses.
type TimeoutStrategy string

const (
	TimeoutHostOverride TimeoutStrategy = "host_override"
	TimeoutAIAutofill   TimeoutStrategy = "ai_autofill"
)

// Normalize maps empty and unknown strategies to ai_autofill.
func (s TimeoutStrategy) Normalize() TimeoutStrategy {
	if s == TimeoutHostOverride {
		return TimeoutHostOverride
	}
	return TimeoutAIAutofill
}

// CompletedByAI is the completed_by value written by the autofill path.
const CompletedByAI = "ai"

// CompletedByHuman is the completed_by value written by human response handlers.
const CompletedByHuman = "human"

// Turn is one participant's pending contribution within a branch.
type Turn struct {
	ID                      string          `gorm:"primaryKey;size:64"`
	BranchID                string          `gorm:"size:64;not null;index"`
	ResponseWindowMinutes   *int
	TimeoutStrategy         TimeoutStrategy `gorm:"size:16;default:ai_autofill"`
	NotifiedChannels        ChannelSet      `gorm:"type:text"`
	ExpiresAt               *time.Time
	CreatedAt               time.Time  `gorm:"index"`
	CompletedAt             *time.Time `gorm:"index"`
	CompletedBy             string     `gorm:"size:64"`
	AutoFilled              bool       `gorm:"default:false"`
	AutoFillText            string     `gorm:"type:text"`
	RecipientHandle         string     `gorm:"size:128"`
	RecipientEmail          string     `gorm:"size:256"`
	RecipientPhone          string     `gorm:"size:32"`
	RecipientDiscordWebhook string     `gorm:"size:512"`
	PromptText              string     `gorm:"type:text"`

	Branch Branch `gorm:"foreignKey:BranchID"`
}

// TableName keeps the table name shared with the turn-taking service.
func (Turn) TableName() string { return "branch_turns" }

// Completed reports whether the turn has left scheduler scope.
func (t *Turn) Completed() bool {
	return t.CompletedAt != nil
}

// ComputeExpiresAt returns createdAt plus the response window. ok is false
// when no window is configured.
func (t *Turn) ComputeExpiresAt() (at time.Time, ok bool) {
	if t.ResponseWindowMinutes == nil || *t.ResponseWindowMinutes <= 0 {
		return time.Time{}, false
	}
	return t.CreatedAt.Add(time.Duration(*t.ResponseWindowMinutes) * time.Minute), true
}
