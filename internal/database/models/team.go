package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TeamMinMembers = 3
	TeamMaxMembers = 5
)

type Team struct {
	Base
	Name       string    `gorm:"uniqueIndex;not null" json:"name"`
	InviteCode string    `gorm:"uniqueIndex;not null;size:6" json:"invite_code"`
	CaptainID  uuid.UUID `gorm:"type:uuid;not null" json:"captain_id"`
	Captain    *User     `gorm:"foreignKey:CaptainID" json:"captain,omitempty"`

	// IsComplete is derived from the live member count and recomputed on
	// every join/leave; it is persisted only so listings can filter on it.
	IsComplete bool `gorm:"default:false" json:"is_complete"`

	RoomID *int  `gorm:"index" json:"room_id"`
	Room   *Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`

	// Session window, unused since the live-scheduling feature was dropped.
	SessionStartTime *time.Time `json:"session_start_time,omitempty"`
	SessionEndTime   *time.Time `json:"session_end_time,omitempty"`

	CurrentScore int  `gorm:"default:0" json:"current_score"`
	Rank         *int `json:"rank,omitempty"`
	CTFdTeamID   *int `gorm:"column:ctfd_team_id" json:"ctfd_team_id,omitempty"`

	Members []User `gorm:"foreignKey:TeamID" json:"members,omitempty"`
}

func (Team) TableName() string {
	return "teams"
}
