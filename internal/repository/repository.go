// Package repository holds the specialized queries the generic store
// adapter cannot express: retention scans, trash bookkeeping, user
// lookup and the tender reference-number uniqueness check.
package repository

import (
	"gorm.io/gorm"
)

// Repositories is the collection handed to the service layer.
type Repositories struct {
	Tender   *TenderRepository
	Activity *ActivityRepository
	Trash    *TrashRepository
	User     *UserRepository
}

// NewRepositories wires every repository onto one database handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Tender:   NewTenderRepository(db),
		Activity: NewActivityRepository(db),
		Trash:    NewTrashRepository(db),
		User:     NewUserRepository(db),
	}
}
