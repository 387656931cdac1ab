package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	FirstName    string `gorm:"not null" json:"first_name"`
	LastName     string `gorm:"not null" json:"last_name"`

	// Profile fields collected at registration; optional since the 2025 form revision.
	School    string `json:"school,omitempty"`
	Grade     string `json:"grade,omitempty"`
	Specialty string `json:"specialty,omitempty"`

	EmailVerified           bool       `gorm:"default:false" json:"email_verified"`
	VerificationToken       *string    `gorm:"index" json:"-"`
	VerificationTokenExpiry *time.Time `json:"-"`

	IsAdmin bool `gorm:"default:false" json:"is_admin"`

	TeamID *uuid.UUID `gorm:"type:uuid;index" json:"team_id"`
	Team   *Team      `gorm:"foreignKey:TeamID" json:"team,omitempty"`

	// Account id on the external CTFd platform, when provisioned there.
	CTFdUserID *int `gorm:"column:ctfd_user_id" json:"ctfd_user_id,omitempty"`
}

func (User) TableName() string {
	return "users"
}
