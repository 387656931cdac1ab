package tasks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/acectf/registration/internal/ctfd"
	"github.com/acectf/registration/internal/database/models"
	"github.com/acectf/registration/internal/email"
)

// LeaderboardChannel is the redis pub/sub channel the API server listens on
// to push fresh scores to connected leaderboard viewers.
const LeaderboardChannel = "leaderboard:updated"

type Handler struct {
	logger  *slog.Logger
	db      *gorm.DB
	mailer  *email.Mailer
	ctfd    *ctfd.Client
	webhook *ctfd.WebhookSender
	syncer  *ctfd.Syncer
	redis   *redis.Client
}

func NewHandler(logger *slog.Logger, db *gorm.DB, mailer *email.Mailer, client *ctfd.Client, webhook *ctfd.WebhookSender, syncer *ctfd.Syncer, redisClient *redis.Client) *Handler {
	return &Handler{
		logger:  logger,
		db:      db,
		mailer:  mailer,
		ctfd:    client,
		webhook: webhook,
		syncer:  syncer,
		redis:   redisClient,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeVerificationEmail, h.HandleVerificationEmail)
	mux.HandleFunc(TypeWelcomeEmail, h.HandleWelcomeEmail)
	mux.HandleFunc(TypeWebhookDeliver, h.HandleWebhookDeliver)
	mux.HandleFunc(TypeScoreSync, h.HandleScoreSync)
	mux.HandleFunc(TypeTeamProvision, h.HandleTeamProvision)
}

// Handlers return errors so asynq retries delivery; a permanently failing
// side effect ends up in the dead queue instead of silently vanishing.

func (h *Handler) HandleVerificationEmail(ctx context.Context, t *asynq.Task) error {
	var payload VerificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := h.mailer.SendVerificationEmail(payload.Email, payload.FirstName, payload.Token); err != nil {
		h.logger.Error("verification email failed", "email", payload.Email, "error", err)
		return err
	}
	return nil
}

func (h *Handler) HandleWelcomeEmail(ctx context.Context, t *asynq.Task) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := h.mailer.SendWelcomeEmail(payload.Email, payload.FirstName, payload.TeamName); err != nil {
		h.logger.Error("welcome email failed", "email", payload.Email, "error", err)
		return err
	}
	return nil
}

func (h *Handler) HandleWebhookDeliver(ctx context.Context, t *asynq.Task) error {
	var payload WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	data := map[string]interface{}{"teamId": payload.TeamID}
	if payload.UserID != nil {
		data["userId"] = *payload.UserID
	}
	if payload.CTFdTeamID != nil {
		data["ctfdTeamId"] = *payload.CTFdTeamID
	}
	if payload.TeamName != "" {
		data["teamName"] = payload.TeamName
	}

	return h.webhook.Send(ctx, payload.Event, data)
}

// HandleTeamProvision mirrors a completed team onto the scoring platform.
// Re-runs skip anything already provisioned, so asynq retries are safe.
func (h *Handler) HandleTeamProvision(ctx context.Context, t *asynq.Task) error {
	if !h.ctfd.Enabled() {
		return nil
	}

	var payload TeamProvisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var team models.Team
	if err := h.db.WithContext(ctx).Preload("Members").First(&team, "id = ?", payload.TeamID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// deleted before the worker got to it
			return nil
		}
		return err
	}

	if team.CTFdTeamID == nil {
		remote, err := h.ctfd.CreateTeam(ctx, team.Name, randomSecret(), 0)
		if err != nil {
			return fmt.Errorf("create remote team %s: %w", team.Name, err)
		}
		if err := h.db.WithContext(ctx).Model(&models.Team{}).
			Where("id = ?", team.ID).
			Update("ctfd_team_id", remote.ID).Error; err != nil {
			return err
		}
		team.CTFdTeamID = &remote.ID
	}

	for i := range team.Members {
		member := &team.Members[i]
		if member.CTFdUserID == nil {
			name := member.FirstName + " " + member.LastName
			remote, err := h.ctfd.CreateUser(ctx, name, member.Email, randomSecret())
			if err != nil {
				return fmt.Errorf("create remote user %s: %w", member.Email, err)
			}
			if err := h.db.WithContext(ctx).Model(&models.User{}).
				Where("id = ?", member.ID).
				Update("ctfd_user_id", remote.ID).Error; err != nil {
				return err
			}
			member.CTFdUserID = &remote.ID
		}
		if err := h.ctfd.AddUserToTeam(ctx, *member.CTFdUserID, *team.CTFdTeamID); err != nil {
			return fmt.Errorf("add %s to remote team: %w", member.Email, err)
		}
	}

	h.logger.Info("team provisioned", "team", team.Name, "ctfd_team_id", *team.CTFdTeamID)
	return nil
}

// randomSecret generates a throwaway password for remote accounts that are
// only ever accessed through SSO.
func randomSecret() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (h *Handler) HandleScoreSync(ctx context.Context, t *asynq.Task) error {
	updated, err := h.syncer.SyncScores(ctx)
	if err != nil {
		return err
	}

	if updated > 0 && h.redis != nil {
		if err := h.redis.Publish(ctx, LeaderboardChannel, updated).Err(); err != nil {
			h.logger.Warn("failed to publish leaderboard update", "error", err)
		}
	}
	return nil
}
