// Package model defines database models
package model

import "time"

// RuleType names the access rule attached to a file. The zero value means no
// rule has been set yet and the file has no public link
type RuleType string

const (
	RuleNone     RuleType = ""
	RulePasscode RuleType = "PASSCODE"
	RuleExpiry   RuleType = "EXPIRY"
	RuleDefault  RuleType = "DEFAULT"
)

// RuleState is the column level representation of a rule. Every field is
// always written together so a previous rule can't leak into a new one
type RuleState struct {
	Type      RuleType
	Passcode  *string
	ExpiresAt *time.Time
}

type File struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"index;not null" json:"-"`
	FileKey      string    `gorm:"not null" json:"-"` // Opaque key inside the content store
	OriginalName string    `json:"name"`
	Format       string    `json:"format"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	RuleType   RuleType   `gorm:"size:16" json:"ruleType"`
	Passcode   *string    `json:"-"`
	ExpiresAt  *time.Time `json:"expiry,omitempty"`
	PublicLink *string    `gorm:"uniqueIndex" json:"publicLink,omitempty"`
}

// Rule returns the rule columns of the file
func (f *File) Rule() RuleState {
	return RuleState{
		Type:      f.RuleType,
		Passcode:  f.Passcode,
		ExpiresAt: f.ExpiresAt,
	}
}

// ApplyRule overwrites every rule column and the public link
func (f *File) ApplyRule(r RuleState, link string) {
	f.RuleType = r.Type
	f.Passcode = r.Passcode
	f.ExpiresAt = r.ExpiresAt
	f.PublicLink = &link
}

// Expired reports whether the file carries an expiry that lies before now
func (f *File) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}
