package teams

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/acectf/registration/internal/database/models"
	"github.com/acectf/registration/internal/tasks"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrNotVerified    = errors.New("email not verified")
	ErrAlreadyInTeam  = errors.New("user already belongs to a team")
	ErrNotInTeam      = errors.New("user does not belong to a team")
	ErrNameTaken      = errors.New("team name already taken")
	ErrNameInvalid    = errors.New("team name must be 3-50 characters")
	ErrTeamNotFound   = errors.New("team not found")
	ErrInviteNotFound = errors.New("invite code not found")
	ErrTeamFull       = errors.New("team is full")
	ErrCodeGeneration = errors.New("failed to generate a unique invite code")
)

const (
	inviteCodeLength   = 6
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeRetries  = 10
)

// Webhook event names, mirrored by the CTFd side.
const (
	EventTeamCreated   = "team.created"
	EventTeamDeleted   = "team.deleted"
	EventMemberAdded   = "team.member_added"
	EventMemberRemoved = "team.member_removed"
)

type Service struct {
	db     *gorm.DB
	queue  tasks.Enqueuer
	logger *slog.Logger
}

func NewService(db *gorm.DB, queue tasks.Enqueuer, logger *slog.Logger) *Service {
	return &Service{db: db, queue: queue, logger: logger}
}

// LeaveResult reports what a leave actually did: a captain leaving deletes
// the whole team, anyone else just steps out.
type LeaveResult struct {
	TeamDeleted bool
	TeamID      uuid.UUID
	TeamName    string
}

func generateInviteCode() (string, error) {
	bytes := make([]byte, inviteCodeLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	code := make([]byte, inviteCodeLength)
	for i, b := range bytes {
		code[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(code), nil
}

// lockTeam takes a row lock on postgres so concurrent joins cannot both pass
// the capacity check. sqlite (tests) serializes writers on its own.
func lockTeam(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// Create makes a new team captained by the given user.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	// rune count, not bytes: accented names are the norm here
	if n := utf8.RuneCountInString(name); n < 3 || n > 50 {
		return nil, ErrNameInvalid
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.EmailVerified {
		return nil, ErrNotVerified
	}
	if user.TeamID != nil {
		return nil, ErrAlreadyInTeam
	}

	var existing models.Team
	err = s.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
	if err == nil {
		return nil, ErrNameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	code, err := s.uniqueInviteCode(ctx)
	if err != nil {
		return nil, err
	}

	team := models.Team{
		Name:       name,
		InviteCode: code,
		CaptainID:  user.ID,
		IsComplete: false,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("team_id", team.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Registration{}).
			Where("user_id = ?", user.ID).
			Updates(map[string]interface{}{
				"team_id": team.ID,
				"status":  models.StatusTeamIncomplete,
			}).Error
	})
	if err != nil {
		// two captains racing past the pre-check land on the unique index
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrNameTaken
		}
		return nil, err
	}

	s.logger.Info("team created", "team", team.Name, "captain", user.Email)
	s.notify(tasks.WebhookDeliverPayload{Event: EventTeamCreated, TeamID: team.ID})

	return &team, nil
}

// Join adds a verified, teamless user to the team matching the invite code.
// The capacity check and the membership write happen under the same team row
// lock, so two users cannot both take the last slot.
func (s *Service) Join(ctx context.Context, userID uuid.UUID, inviteCode string) (*models.Team, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.EmailVerified {
		return nil, ErrNotVerified
	}
	if user.TeamID != nil {
		return nil, ErrAlreadyInTeam
	}

	inviteCode = strings.ToUpper(strings.TrimSpace(inviteCode))

	var team models.Team
	var wasComplete bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTeam(tx).Where("invite_code = ?", inviteCode).First(&team).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInviteNotFound
			}
			return err
		}
		wasComplete = team.IsComplete

		var count int64
		if err := tx.Model(&models.User{}).Where("team_id = ?", team.ID).Count(&count).Error; err != nil {
			return err
		}
		if count >= models.TeamMaxMembers {
			return ErrTeamFull
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("team_id", team.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Registration{}).
			Where("user_id = ?", user.ID).
			Updates(map[string]interface{}{
				"team_id": team.ID,
				"status":  models.StatusTeamIncomplete,
			}).Error; err != nil {
			return err
		}

		return s.recomputeCompleteness(tx, &team)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user joined team", "user", user.Email, "team", team.Name)

	s.enqueueWelcomeEmail(user, team.Name)
	s.notify(tasks.WebhookDeliverPayload{Event: EventMemberAdded, TeamID: team.ID, UserID: &user.ID})
	if !wasComplete && team.IsComplete {
		s.enqueueProvision(team.ID)
	}

	return &team, nil
}

// Leave removes the user from their team. A captain leaving deletes the team
// and resets every member; anyone else just steps out and the remaining
// team's completeness and statuses are recomputed.
func (s *Service) Leave(ctx context.Context, userID uuid.UUID) (*LeaveResult, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TeamID == nil {
		return nil, ErrNotInTeam
	}

	var team models.Team
	if err := s.db.WithContext(ctx).First(&team, "id = ?", *user.TeamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// membership pointer without a team row; clean up and report
			s.logger.Warn("user points to a missing team", "user", user.Email, "team_id", *user.TeamID)
			return nil, ErrTeamNotFound
		}
		return nil, err
	}

	if team.CaptainID == user.ID {
		if err := s.deleteTeamCascade(ctx, &team); err != nil {
			return nil, err
		}
		s.logger.Info("team deleted by captain", "team", team.Name, "captain", user.Email)
		return &LeaveResult{TeamDeleted: true, TeamID: team.ID, TeamName: team.Name}, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("team_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Registration{}).
			Where("user_id = ?", user.ID).
			Updates(map[string]interface{}{
				"team_id": nil,
				"status":  models.StatusVerified,
			}).Error; err != nil {
			return err
		}
		return s.recomputeCompleteness(tx, &team)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user left team", "user", user.Email, "team", team.Name)
	s.notify(tasks.WebhookDeliverPayload{Event: EventMemberRemoved, TeamID: team.ID, UserID: &user.ID})

	return &LeaveResult{TeamDeleted: false, TeamID: team.ID, TeamName: team.Name}, nil
}

// Delete runs the captain-leave cascade on behalf of an admin.
func (s *Service) Delete(ctx context.Context, teamID uuid.UUID) error {
	var team models.Team
	if err := s.db.WithContext(ctx).First(&team, "id = ?", teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTeamNotFound
		}
		return err
	}
	if err := s.deleteTeamCascade(ctx, &team); err != nil {
		return err
	}
	s.logger.Info("team deleted", "team", team.Name)
	return nil
}

// Get returns a team with captain and members loaded.
func (s *Service) Get(ctx context.Context, teamID uuid.UUID) (*models.Team, int64, error) {
	var team models.Team
	if err := s.db.WithContext(ctx).
		Preload("Captain").
		Preload("Members").
		Preload("Room").
		First(&team, "id = ?", teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrTeamNotFound
		}
		return nil, 0, err
	}
	count, err := s.MemberCount(ctx, team.ID)
	if err != nil {
		return nil, 0, err
	}
	return &team, count, nil
}

// MyTeam returns the team of the given user.
func (s *Service) MyTeam(ctx context.Context, userID uuid.UUID) (*models.Team, int64, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if user.TeamID == nil {
		return nil, 0, ErrNotInTeam
	}
	return s.Get(ctx, *user.TeamID)
}

// MemberCount is always derived from the credential store, never cached.
func (s *Service) MemberCount(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("team_id = ?", teamID).Count(&count).Error
	return count, err
}

func (s *Service) IsFull(ctx context.Context, teamID uuid.UUID) (bool, error) {
	count, err := s.MemberCount(ctx, teamID)
	return count >= models.TeamMaxMembers, err
}

func (s *Service) HasMinimumMembers(ctx context.Context, teamID uuid.UUID) (bool, error) {
	count, err := s.MemberCount(ctx, teamID)
	return count >= models.TeamMinMembers, err
}

func (s *Service) getUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) uniqueInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < inviteCodeRetries; attempt++ {
		code, err := generateInviteCode()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrCodeGeneration, err)
		}
		var existing models.Team
		err = s.db.WithContext(ctx).Where("invite_code = ?", code).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		// collision, try again
	}
	return "", ErrCodeGeneration
}

// recomputeCompleteness re-derives the member count inside the caller's
// transaction and keeps both the team flag and every member's registration
// status in line with it. A team that shrinks below the minimum drops its
// members back to team_incomplete.
func (s *Service) recomputeCompleteness(tx *gorm.DB, team *models.Team) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("team_id = ?", team.ID).Count(&count).Error; err != nil {
		return err
	}

	complete := count >= models.TeamMinMembers && count <= models.TeamMaxMembers
	if err := tx.Model(&models.Team{}).
		Where("id = ?", team.ID).
		Update("is_complete", complete).Error; err != nil {
		return err
	}
	team.IsComplete = complete

	status := models.StatusTeamIncomplete
	if complete {
		status = models.StatusTeamComplete
	}
	return tx.Model(&models.Registration{}).
		Where("team_id = ?", team.ID).
		Update("status", status).Error
}

func (s *Service) deleteTeamCascade(ctx context.Context, team *models.Team) error {
	// capture before the row is gone
	notification := tasks.WebhookDeliverPayload{
		Event:      EventTeamDeleted,
		TeamID:     team.ID,
		CTFdTeamID: team.CTFdTeamID,
		TeamName:   team.Name,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("team_id = ?", team.ID).
			Update("team_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Registration{}).
			Where("team_id = ?", team.ID).
			Updates(map[string]interface{}{
				"team_id": nil,
				"status":  models.StatusVerified,
			}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Team{}, "id = ?", team.ID).Error
	})
	if err != nil {
		return err
	}

	s.notify(notification)
	return nil
}

func (s *Service) notify(payload tasks.WebhookDeliverPayload) {
	if s.queue == nil {
		return
	}
	task, err := tasks.NewWebhookDeliverTask(payload)
	if err == nil {
		_, err = s.queue.Enqueue(task)
	}
	if err != nil {
		s.logger.Warn("failed to enqueue webhook", "event", payload.Event, "error", err)
	}
}

func (s *Service) enqueueProvision(teamID uuid.UUID) {
	if s.queue == nil {
		return
	}
	task, err := tasks.NewTeamProvisionTask(tasks.TeamProvisionPayload{TeamID: teamID})
	if err == nil {
		_, err = s.queue.Enqueue(task)
	}
	if err != nil {
		s.logger.Warn("failed to enqueue team provisioning", "team_id", teamID, "error", err)
	}
}

func (s *Service) enqueueWelcomeEmail(user *models.User, teamName string) {
	if s.queue == nil {
		return
	}
	task, err := tasks.NewWelcomeEmailTask(tasks.WelcomeEmailPayload{
		Email:     user.Email,
		FirstName: user.FirstName,
		TeamName:  teamName,
	})
	if err == nil {
		_, err = s.queue.Enqueue(task)
	}
	if err != nil {
		s.logger.Warn("failed to enqueue welcome email", "email", user.Email, "error", err)
	}
}
