package dto

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/acectf/registration/internal/database/models"
)

type CreateTeamRequest struct {
	Name string `json:"name"`
}

func (r CreateTeamRequest) Validate() []FieldError {
	var errors []FieldError

	name := strings.TrimSpace(r.Name)
	if name == "" {
		errors = append(errors, FieldError{Field: "name", Message: "Le nom d'équipe est requis."})
	} else if n := utf8.RuneCountInString(name); n < 3 || n > 50 {
		errors = append(errors, FieldError{Field: "name", Message: "Le nom d'équipe doit contenir entre 3 et 50 caractères."})
	}

	return errors
}

type JoinTeamRequest struct {
	InviteCode string `json:"inviteCode"`
}

func (r JoinTeamRequest) Validate() []FieldError {
	var errors []FieldError

	if strings.TrimSpace(r.InviteCode) == "" {
		errors = append(errors, FieldError{Field: "inviteCode", Message: "Le code d'invitation est requis."})
	}

	return errors
}

type TeamDTO struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	InviteCode  string      `json:"inviteCode,omitempty"`
	CaptainID   string      `json:"captainId"`
	IsComplete  bool        `json:"isComplete"`
	MemberCount int         `json:"memberCount"`
	Members     []MemberDTO `json:"members,omitempty"`
	Room        *RoomDTO    `json:"room,omitempty"`
	Score       int         `json:"score"`
	Rank        *int        `json:"rank,omitempty"`
	CreatedAt   string      `json:"createdAt"`
}

type MemberDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	School    string `json:"school,omitempty"`
	IsCaptain bool   `json:"isCaptain"`
}

type RoomDTO struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// NewTeamDTO renders a team for its own members. The invite code is
// included so members can recruit; public views must use NewPublicTeamDTO.
func NewTeamDTO(t *models.Team) TeamDTO {
	d := TeamDTO{
		ID:          t.ID.String(),
		Name:        t.Name,
		InviteCode:  t.InviteCode,
		CaptainID:   t.CaptainID.String(),
		IsComplete:  t.IsComplete,
		MemberCount: len(t.Members),
		Score:       t.CurrentScore,
		Rank:        t.Rank,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
	for _, m := range t.Members {
		d.Members = append(d.Members, MemberDTO{
			ID:        m.ID.String(),
			FirstName: m.FirstName,
			LastName:  m.LastName,
			School:    m.School,
			IsCaptain: m.ID == t.CaptainID,
		})
	}
	if t.Room != nil {
		d.Room = &RoomDTO{Number: t.Room.Number, Name: t.Room.Name}
	}
	return d
}

func NewPublicTeamDTO(t *models.Team) TeamDTO {
	d := NewTeamDTO(t)
	d.InviteCode = ""
	return d
}
