package dto

import (
	"strings"
	"time"

	"github.com/acectf/registration/internal/database/models"
)

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	School       string `json:"school,omitempty"`
	Grade        string `json:"grade,omitempty"`
	Specialty    string `json:"specialty,omitempty"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

func (r RegisterRequest) Validate() []FieldError {
	var errors []FieldError

	if strings.TrimSpace(r.Email) == "" {
		errors = append(errors, FieldError{Field: "email", Message: "L'email est requis."})
	} else if !strings.Contains(r.Email, "@") {
		errors = append(errors, FieldError{Field: "email", Message: "L'email est invalide."})
	}
	if r.Password == "" {
		errors = append(errors, FieldError{Field: "password", Message: "Le mot de passe est requis."})
	} else if len(r.Password) < 8 {
		errors = append(errors, FieldError{Field: "password", Message: "Le mot de passe doit contenir au moins 8 caractères."})
	}
	if strings.TrimSpace(r.FirstName) == "" {
		errors = append(errors, FieldError{Field: "firstName", Message: "Le prénom est requis."})
	}
	if strings.TrimSpace(r.LastName) == "" {
		errors = append(errors, FieldError{Field: "lastName", Message: "Le nom est requis."})
	}

	return errors
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() []FieldError {
	var errors []FieldError

	if strings.TrimSpace(r.Email) == "" {
		errors = append(errors, FieldError{Field: "email", Message: "L'email est requis."})
	}
	if r.Password == "" {
		errors = append(errors, FieldError{Field: "password", Message: "Le mot de passe est requis."})
	}

	return errors
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ResendVerificationRequest struct {
	Email string `json:"email"`
}

type AuthResponse struct {
	Token     string  `json:"token"`
	User      UserDTO `json:"user"`
	CTFdToken string  `json:"ctfdToken,omitempty"`
}

type UserDTO struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	FirstName     string  `json:"firstName"`
	LastName      string  `json:"lastName"`
	School        string  `json:"school,omitempty"`
	Grade         string  `json:"grade,omitempty"`
	Specialty     string  `json:"specialty,omitempty"`
	EmailVerified bool    `json:"emailVerified"`
	IsAdmin       bool    `json:"isAdmin"`
	TeamID        *string `json:"teamId,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

func NewUserDTO(u *models.User) UserDTO {
	d := UserDTO{
		ID:            u.ID.String(),
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		School:        u.School,
		Grade:         u.Grade,
		Specialty:     u.Specialty,
		EmailVerified: u.EmailVerified,
		IsAdmin:       u.IsAdmin,
		CreatedAt:     u.CreatedAt.Format(time.RFC3339),
	}
	if u.TeamID != nil {
		id := u.TeamID.String()
		d.TeamID = &id
	}
	return d
}
