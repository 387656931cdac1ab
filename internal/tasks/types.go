package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeVerificationEmail = "email:verification"
	TypeWelcomeEmail      = "email:welcome"
	TypeWebhookDeliver    = "ctfd:webhook"
	TypeScoreSync         = "ctfd:sync_scores"
	TypeTeamProvision     = "ctfd:provision_team"
)

// Enqueuer is the slice of asynq.Client the services need. Callers that
// run without redis pass nil and side effects are skipped.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// VerificationEmailPayload carries everything needed to build the
// verification link without another database round trip.
type VerificationEmailPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	Token     string    `json:"token"`
}

func NewVerificationEmailTask(payload VerificationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVerificationEmail, data, asynq.Queue("critical")), nil
}

type WelcomeEmailPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	TeamName  string `json:"team_name"`
}

func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWelcomeEmail, data, asynq.Queue("low")), nil
}

// WebhookDeliverPayload is a team lifecycle notification for the CTFd side.
// For deletions the external team id is captured before the row disappears.
type WebhookDeliverPayload struct {
	Event      string     `json:"event"`
	TeamID     uuid.UUID  `json:"team_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	CTFdTeamID *int       `json:"ctfd_team_id,omitempty"`
	TeamName   string     `json:"team_name,omitempty"`
}

func NewWebhookDeliverTask(payload WebhookDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWebhookDeliver, data, asynq.MaxRetry(5)), nil
}

// TeamProvisionPayload asks the worker to mirror a freshly completed team
// onto the scoring platform. Idempotent on the handler side.
type TeamProvisionPayload struct {
	TeamID uuid.UUID `json:"team_id"`
}

func NewTeamProvisionTask(payload TeamProvisionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTeamProvision, data, asynq.MaxRetry(5)), nil
}

type ScoreSyncPayload struct{}

func NewScoreSyncTask() *asynq.Task {
	return asynq.NewTask(TypeScoreSync, nil, asynq.Queue("low"))
}
