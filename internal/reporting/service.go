package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acectf/registration/internal/database/models"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrUserNotFound         = errors.New("user not found")
)

// Service answers the admin's read-mostly questions: aggregates, listings,
// exports, and the event-day check-in transitions.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type Overview struct {
	TotalRegistrations int64 `json:"totalRegistrations"`
	VerifiedUsers      int64 `json:"verifiedUsers"`
	TotalTeams         int64 `json:"totalTeams"`
	CompleteTeams      int64 `json:"completeTeams"`
	IncompleteTeams    int64 `json:"incompleteTeams"`
}

type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type Stats struct {
	Overview           Overview     `json:"overview"`
	SchoolDistribution []GroupCount `json:"schoolDistribution"`
	RegistrationStatus []GroupCount `json:"registrationStatus"`
	RoomDistribution   []GroupCount `json:"roomDistribution"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{}

	if err := db.Model(&models.User{}).Count(&stats.Overview.TotalRegistrations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("email_verified = ?", true).Count(&stats.Overview.VerifiedUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Team{}).Count(&stats.Overview.TotalTeams).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Team{}).Where("is_complete = ?", true).Count(&stats.Overview.CompleteTeams).Error; err != nil {
		return nil, err
	}
	stats.Overview.IncompleteTeams = stats.Overview.TotalTeams - stats.Overview.CompleteTeams

	var err error
	stats.SchoolDistribution, err = s.groupCount(ctx, &models.User{}, "school")
	if err != nil {
		return nil, err
	}
	stats.RegistrationStatus, err = s.groupCount(ctx, &models.Registration{}, "status")
	if err != nil {
		return nil, err
	}

	var rooms []GroupCount
	err = db.Model(&models.Team{}).
		Select("CAST(room_id AS TEXT) as key, COUNT(*) as count").
		Where("room_id IS NOT NULL").
		Group("room_id").
		Scan(&rooms).Error
	if err != nil {
		return nil, err
	}
	stats.RoomDistribution = rooms

	return stats, nil
}

func (s *Service) groupCount(ctx context.Context, model interface{}, column string) ([]GroupCount, error) {
	var rows []GroupCount
	err := s.db.WithContext(ctx).Model(model).
		Select(column + " as key, COUNT(*) as count").
		Group(column).
		Scan(&rows).Error
	return rows, err
}

// RegistrationFilter narrows the admin listing; zero values mean "no filter".
type RegistrationFilter struct {
	Status  string
	School  string
	HasTeam *bool
}

func (s *Service) Registrations(ctx context.Context, filter RegistrationFilter) ([]models.Registration, error) {
	q := s.db.WithContext(ctx).Model(&models.Registration{}).
		Preload("User").
		Preload("Team").
		Order("registrations.created_at DESC")

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.School != "" {
		q = q.Joins("JOIN users ON users.id = registrations.user_id").
			Where("users.school = ?", filter.School)
	}
	if filter.HasTeam != nil {
		if *filter.HasTeam {
			q = q.Where("registrations.team_id IS NOT NULL")
		} else {
			q = q.Where("registrations.team_id IS NULL")
		}
	}

	var registrations []models.Registration
	err := q.Find(&registrations).Error
	return registrations, err
}

// ExportCSV denormalizes user, team and registration into one row per
// registration. Column headers match the historical export consumed by the
// event staff.
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	registrations, err := s.Registrations(ctx, RegistrationFilter{})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{
		"Prénom", "Nom", "Email", "Lycée", "Classe", "Spécialité",
		"Email Vérifié", "Équipe", "Salle", "Statut",
	}); err != nil {
		return nil, err
	}

	for _, reg := range registrations {
		if reg.User == nil {
			continue
		}
		verified := "Non"
		if reg.User.EmailVerified {
			verified = "Oui"
		}
		teamName := "Aucune"
		room := ""
		if reg.Team != nil {
			teamName = reg.Team.Name
			if reg.Team.RoomID != nil {
				room = fmt.Sprintf("%d", *reg.Team.RoomID)
			}
		}
		if err := w.Write([]string{
			reg.User.FirstName,
			reg.User.LastName,
			reg.User.Email,
			reg.User.School,
			reg.User.Grade,
			reg.User.Specialty,
			verified,
			teamName,
			room,
			string(reg.Status),
		}); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TeamFilter narrows the admin team listing.
type TeamFilter struct {
	Complete   *bool
	RoomNumber *int
}

// TeamWithCount wraps a team with its derived member count.
type TeamWithCount struct {
	models.Team
	MemberCount int64 `json:"member_count"`
}

func (s *Service) Teams(ctx context.Context, filter TeamFilter) ([]TeamWithCount, error) {
	q := s.db.WithContext(ctx).Model(&models.Team{}).
		Preload("Captain").
		Preload("Members").
		Order("created_at DESC")

	if filter.Complete != nil {
		q = q.Where("is_complete = ?", *filter.Complete)
	}
	if filter.RoomNumber != nil {
		q = q.Where("room_id = ?", *filter.RoomNumber)
	}

	var teams []models.Team
	if err := q.Find(&teams).Error; err != nil {
		return nil, err
	}

	result := make([]TeamWithCount, 0, len(teams))
	for _, team := range teams {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("team_id = ?", team.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		result = append(result, TeamWithCount{Team: team, MemberCount: count})
	}
	return result, nil
}

// Scores lists teams ordered for the score table.
func (s *Service) Scores(ctx context.Context) ([]models.Team, error) {
	var teams []models.Team
	err := s.db.WithContext(ctx).
		Select("id", "name", "current_score", "rank", "room_id").
		Order("current_score DESC").
		Find(&teams).Error
	return teams, err
}

// UpdateUser force-updates a user's fields on behalf of an admin.
func (s *Service) UpdateUser(ctx context.Context, userID uuid.UUID, updates map[string]interface{}) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CheckIn / Complete / Cancel are the event-day transitions; they only touch
// the reporting record, never team membership.
func (s *Service) CheckIn(ctx context.Context, registrationID uuid.UUID) error {
	return s.setStatus(ctx, registrationID, map[string]interface{}{
		"status":        models.StatusCheckedIn,
		"checked_in_at": time.Now(),
	})
}

func (s *Service) Complete(ctx context.Context, registrationID uuid.UUID) error {
	return s.setStatus(ctx, registrationID, map[string]interface{}{
		"status":       models.StatusCompleted,
		"completed_at": time.Now(),
	})
}

func (s *Service) Cancel(ctx context.Context, registrationID uuid.UUID) error {
	return s.setStatus(ctx, registrationID, map[string]interface{}{
		"status": models.StatusCancelled,
	})
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.Registration{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}
