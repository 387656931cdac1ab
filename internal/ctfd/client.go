package ctfd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/acectf/registration/pkg/config"
)

// Client is a thin wrapper over the CTFd REST API. When the integration is
// not configured every method is a no-op returning empty values, so the rest
// of the system runs without the platform.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
	enabled bool
}

func NewClient(cfg *config.CTFdConfig, logger *slog.Logger) *Client {
	if !cfg.Enabled() {
		logger.Warn("CTFd integration disabled: missing configuration")
	}
	return &Client{
		baseURL: cfg.APIURL,
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		enabled: cfg.Enabled(),
	}
}

func (c *Client) Enabled() bool {
	return c.enabled
}

type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Team struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type ScoreboardEntry struct {
	TeamID int    `json:"team_id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Pos    int    `json:"pos"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ctfd: %s %s returned %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("ctfd: decoding response: %w", err)
	}
	if env.Data == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// CreateUser provisions a verified, visible account on the platform.
func (c *Client) CreateUser(ctx context.Context, name, email, password string) (*User, error) {
	if !c.enabled {
		return nil, nil
	}
	var user User
	err := c.do(ctx, http.MethodPost, "/api/v1/users", map[string]interface{}{
		"name":     name,
		"email":    email,
		"password": password,
		"type":     "user",
		"verified": true,
		"hidden":   false,
	}, &user)
	if err != nil {
		c.logger.Error("failed to create CTFd user", "email", email, "error", err)
		return nil, err
	}
	c.logger.Info("CTFd user created", "email", email)
	return &user, nil
}

func (c *Client) CreateTeam(ctx context.Context, name, password string, captainID int) (*Team, error) {
	if !c.enabled {
		return nil, nil
	}
	body := map[string]interface{}{
		"name":     name,
		"password": password,
	}
	if captainID > 0 {
		body["captain_id"] = captainID
	}
	var team Team
	err := c.do(ctx, http.MethodPost, "/api/v1/teams", body, &team)
	if err != nil {
		c.logger.Error("failed to create CTFd team", "team", name, "error", err)
		return nil, err
	}
	c.logger.Info("CTFd team created", "team", name)
	return &team, nil
}

func (c *Client) AddUserToTeam(ctx context.Context, userID, teamID int) error {
	if !c.enabled {
		return nil
	}
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/users/%d", userID), map[string]interface{}{
		"team_id": teamID,
	}, nil)
	if err != nil {
		c.logger.Error("failed to add user to CTFd team", "user_id", userID, "team_id", teamID, "error", err)
	}
	return err
}

type accessToken struct {
	Value string `json:"value"`
}

// SSOToken mints a short-lived platform token for an already provisioned
// user. Callers treat failures as cosmetic and never block on this.
func (c *Client) SSOToken(ctx context.Context, userID int) (string, error) {
	if !c.enabled {
		return "", nil
	}
	var token accessToken
	err := c.do(ctx, http.MethodPost, "/api/v1/tokens", map[string]interface{}{
		"user_id":    userID,
		"expiration": time.Now().Add(24 * time.Hour).Format("2006-01-02"),
	}, &token)
	if err != nil {
		c.logger.Warn("failed to mint CTFd token", "user_id", userID, "error", err)
		return "", err
	}
	return token.Value, nil
}

func (c *Client) Scoreboard(ctx context.Context) ([]ScoreboardEntry, error) {
	if !c.enabled {
		return nil, nil
	}
	var entries []ScoreboardEntry
	if err := c.do(ctx, http.MethodGet, "/api/v1/scoreboard", nil, &entries); err != nil {
		c.logger.Error("failed to get CTFd scoreboard", "error", err)
		return nil, err
	}
	return entries, nil
}

func (c *Client) TeamScore(ctx context.Context, teamID int) (int, error) {
	if !c.enabled {
		return 0, nil
	}
	var team Team
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/teams/%d", teamID), nil, &team); err != nil {
		return 0, err
	}
	return team.Score, nil
}

func (c *Client) TeamSolves(ctx context.Context, teamID int) ([]json.RawMessage, error) {
	if !c.enabled {
		return nil, nil
	}
	var solves []json.RawMessage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/teams/%d/solves", teamID), nil, &solves)
	return solves, err
}

func (c *Client) Health(ctx context.Context) bool {
	if !c.enabled {
		return false
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/", nil, nil); err != nil {
		c.logger.Error("CTFd health check failed", "error", err)
		return false
	}
	return true
}
