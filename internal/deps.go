// Package internal wires together everything the HTTP handlers depend on
package internal

import (
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/repository"
	"bitwise74/share-api/internal/service"
	"bitwise74/share-api/internal/storage"
	"bitwise74/share-api/pkg/security"

	"gorm.io/gorm"
)

type Deps struct {
	DB        *gorm.DB
	Argon     *security.ArgonHash
	Store     storage.ContentStore
	Files     *repository.Files
	Users     *repository.Users
	Engine    *access.Engine
	Uploader  *service.Uploader
	MailQueue *service.MailQueue
	// MailFrom is the sender address of outgoing mail
	MailFrom string
}
