package models

import (
	"time"

	"github.com/google/uuid"
)

type RegistrationStatus string

const (
	StatusPending        RegistrationStatus = "pending"
	StatusVerified       RegistrationStatus = "verified"
	StatusTeamIncomplete RegistrationStatus = "team_incomplete"
	StatusTeamComplete   RegistrationStatus = "team_complete"
	StatusCheckedIn      RegistrationStatus = "checked_in"
	StatusCompleted      RegistrationStatus = "completed"
	StatusCancelled      RegistrationStatus = "cancelled"
)

// Registration tracks one user's progress through the event lifecycle.
// It mirrors the user/team state for reporting and export; it is never
// consulted for access control.
type Registration struct {
	Base
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	User   *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`

	TeamID *uuid.UUID `gorm:"type:uuid;index" json:"team_id"`
	Team   *Team      `gorm:"foreignKey:TeamID" json:"team,omitempty"`

	Status RegistrationStatus `gorm:"default:'pending';index" json:"status"`

	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Notes string `gorm:"type:text" json:"notes,omitempty"`
}

func (Registration) TableName() string {
	return "registrations"
}
