package models

// Branch is the collaborative story session a turn belongs to.
type Branch struct {
	ID      string  `gorm:"primaryKey;size:64"`
	Title   string  `gorm:"not null"`
	WorldID *string `gorm:"size:64"`
}

// TableName keeps the table name shared with the story service.
func (Branch) TableName() string { return "story_branches" }
