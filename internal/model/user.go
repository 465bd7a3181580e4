package model

import "time"

type MailStatus string

const (
	MailPending MailStatus = "pending"
	MailSent    MailStatus = "sent"
	MailError   MailStatus = "error"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"unique; not null"`
	PasswordHash string `gorm:"not null"`
	Role         Role   `gorm:"size:16;default:USER"`
	// Secret used by files with the DEFAULT rule. Rows created by older
	// deployments may hold a bcrypt hash or plain text
	DefaultDownloadPassword *string
	Verified                bool `gorm:"default:false"`
	ExpiresAt               *time.Time
	EmailDeliveryStatus     MailStatus `gorm:"default:pending"`
	LastMailSentAt          *time.Time
	CreatedAt               time.Time

	// Address waiting for confirmation through an email_change token
	PendingEmail *string

	// Argon2id hash of the one-time password reset code
	PasswordResetOTP       *string
	PasswordResetExpiresAt *time.Time
	PasswordResetAttempts  int
	// Auth tokens issued before this are rejected
	PasswordChangedAt *time.Time

	VerificationTokens []VerificationToken `gorm:"foreignKey:UserID"`
	Files              []File              `gorm:"foreignKey:UserID"`
	Stats              Stats               `gorm:"foreignKey:UserID"`
}
