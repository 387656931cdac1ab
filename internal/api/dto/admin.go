package dto

import (
	"time"

	"github.com/acectf/registration/internal/database/models"
	"github.com/acectf/registration/internal/reporting"
)

type UpdateUserRequest struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	School    *string `json:"school,omitempty"`
	Grade     *string `json:"grade,omitempty"`
	Specialty *string `json:"specialty,omitempty"`
}

// Updates returns the column map for a partial update. Empty request
// means nothing to change.
func (r UpdateUserRequest) Updates() map[string]interface{} {
	updates := make(map[string]interface{})
	if r.FirstName != nil {
		updates["first_name"] = *r.FirstName
	}
	if r.LastName != nil {
		updates["last_name"] = *r.LastName
	}
	if r.School != nil {
		updates["school"] = *r.School
	}
	if r.Grade != nil {
		updates["grade"] = *r.Grade
	}
	if r.Specialty != nil {
		updates["specialty"] = *r.Specialty
	}
	return updates
}

type RenameRoomRequest struct {
	Name string `json:"name"`
}

type AssignRoomsRequest struct {
	Assignments []RoomAssignment `json:"assignments"`
}

type RoomAssignment struct {
	TeamID     string `json:"teamId"`
	RoomNumber int    `json:"roomNumber"`
}

type AssignRoomsResponse struct {
	Applied int      `json:"applied"`
	Failed  []string `json:"failed,omitempty"`
}

type RegistrationDTO struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	User         UserDTO `json:"user"`
	TeamName     string  `json:"teamName,omitempty"`
	VerifiedAt   *string `json:"verifiedAt,omitempty"`
	CheckedInAt  *string `json:"checkedInAt,omitempty"`
	CompletedAt  *string `json:"completedAt,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	RegisteredAt string  `json:"registeredAt"`
}

func NewRegistrationDTO(reg *models.Registration) RegistrationDTO {
	d := RegistrationDTO{
		ID:           reg.ID.String(),
		Status:       string(reg.Status),
		Notes:        reg.Notes,
		RegisteredAt: reg.CreatedAt.Format(time.RFC3339),
	}
	if reg.User != nil {
		d.User = NewUserDTO(reg.User)
	}
	if reg.Team != nil {
		d.TeamName = reg.Team.Name
	}
	d.VerifiedAt = formatTime(reg.VerifiedAt)
	d.CheckedInAt = formatTime(reg.CheckedInAt)
	d.CompletedAt = formatTime(reg.CompletedAt)
	return d
}

type AdminTeamDTO struct {
	TeamDTO
	CaptainName string `json:"captainName,omitempty"`
}

func NewAdminTeamDTO(t *reporting.TeamWithCount) AdminTeamDTO {
	d := AdminTeamDTO{TeamDTO: NewTeamDTO(&t.Team)}
	d.MemberCount = int(t.MemberCount)
	if t.Team.Captain != nil {
		d.CaptainName = t.Team.Captain.FirstName + " " + t.Team.Captain.LastName
	}
	return d
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
