package model

import "time"

// Migration is one row per named secret migration. Re-running a migration
// overwrites the row with the latest run
type Migration struct {
	ID        int       `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	Rewritten int       // values hashed by the latest run
	AppliedAt time.Time `gorm:"autoCreateTime"`
}
