package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acectf/registration/internal/database/models"
	"github.com/acectf/registration/internal/tasks"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrPasswordTooShort    = errors.New("password too short")
	ErrVerificationInvalid = errors.New("verification token not found")
	ErrVerificationExpired = errors.New("verification token expired")
)

const (
	verificationTokenBytes = 32
	verificationTokenTTL   = 24 * time.Hour
)

type Service struct {
	db     *gorm.DB
	jwt    *JWTService
	queue  tasks.Enqueuer
	logger *slog.Logger
}

func NewService(db *gorm.DB, jwt *JWTService, queue tasks.Enqueuer, logger *slog.Logger) *Service {
	return &Service{db: db, jwt: jwt, queue: queue, logger: logger}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	School    string
	Grade     string
	Specialty string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// NormalizeEmail is the canonical form used for uniqueness checks and for
// rate limit keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// Register creates the user and its registration record in one transaction
// and queues the verification email. Email delivery failures never surface
// here; the account exists either way.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	input.Email = NormalizeEmail(input.Email)

	if len(input.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", input.Email).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	token, err := generateSecureToken(verificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating verification token: %w", err)
	}
	expiry := time.Now().Add(verificationTokenTTL)

	user := models.User{
		Email:                   input.Email,
		PasswordHash:            hash,
		FirstName:               input.FirstName,
		LastName:                input.LastName,
		School:                  input.School,
		Grade:                   input.Grade,
		Specialty:               input.Specialty,
		EmailVerified:           false,
		VerificationToken:       &token,
		VerificationTokenExpiry: &expiry,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		registration := models.Registration{
			UserID: user.ID,
			Status: models.StatusPending,
		}
		return tx.Create(&registration).Error
	})
	if err != nil {
		return nil, err
	}

	s.enqueueVerificationEmail(&user, token)

	return &user, nil
}

// VerifyEmail flips the verified flag and advances the registration record.
// Unknown and expired tokens fail with distinct errors; both leave the
// account unverified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("verification_token = ?", token).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVerificationInvalid
		}
		return nil, err
	}

	if user.VerificationTokenExpiry != nil && user.VerificationTokenExpiry.Before(time.Now()) {
		return nil, ErrVerificationExpired
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"email_verified":            true,
			"verification_token":        nil,
			"verification_token_expiry": nil,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Registration{}).
			Where("user_id = ?", user.ID).
			Updates(map[string]interface{}{
				"status":      models.StatusVerified,
				"verified_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	user.EmailVerified = true
	user.VerificationToken = nil
	user.VerificationTokenExpiry = nil
	return &user, nil
}

// ResendVerification rotates the token for an unverified account. Unknown
// or already-verified emails return nil so the endpoint cannot be used to
// probe which addresses have accounts.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified {
		return nil
	}

	token, err := generateSecureToken(verificationTokenBytes)
	if err != nil {
		return fmt.Errorf("generating verification token: %w", err)
	}
	expiry := time.Now().Add(verificationTokenTTL)

	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"verification_token":        token,
		"verification_token_expiry": expiry,
	}).Error; err != nil {
		return err
	}

	s.enqueueVerificationEmail(&user, token)
	return nil
}

// Login returns the same error for an unknown email and a wrong password so
// responses cannot be used for account enumeration.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", NormalizeEmail(input.Email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: &user}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("Team").
		First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) enqueueVerificationEmail(user *models.User, token string) {
	if s.queue == nil {
		return
	}
	task, err := tasks.NewVerificationEmailTask(tasks.VerificationEmailPayload{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		Token:     token,
	})
	if err == nil {
		_, err = s.queue.Enqueue(task)
	}
	if err != nil {
		s.logger.Warn("failed to enqueue verification email", "email", user.Email, "error", err)
	}
}
