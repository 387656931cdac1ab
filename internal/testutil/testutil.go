package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/acectf/registration/internal/auth"
	"github.com/acectf/registration/internal/database/models"
)

// SetupTestDB creates an in-memory SQLite database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Room{},
		&models.Team{},
		&models.User{},
		&models.Registration{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// UserOption tweaks a fixture user before it is saved.
type UserOption func(*models.User)

func Verified() UserOption {
	return func(u *models.User) { u.EmailVerified = true }
}

func Admin() UserOption {
	return func(u *models.User) {
		u.EmailVerified = true
		u.IsAdmin = true
	}
}

func WithEmail(email string) UserOption {
	return func(u *models.User) { u.Email = email }
}

func WithSchool(school string) UserOption {
	return func(u *models.User) { u.School = school }
}

// CreateTestUser creates a user with its registration record, the way the
// registration flow would.
func CreateTestUser(t *testing.T, db *gorm.DB, opts ...UserOption) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base:         models.Base{ID: uuid.New()},
		Email:        "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		School:       "Lycée Test",
	}
	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	status := models.StatusPending
	var verifiedAt *time.Time
	if user.EmailVerified {
		status = models.StatusVerified
		now := time.Now()
		verifiedAt = &now
	}
	reg := &models.Registration{
		Base:       models.Base{ID: uuid.New()},
		UserID:     user.ID,
		Status:     status,
		VerifiedAt: verifiedAt,
	}
	if err := db.Create(reg).Error; err != nil {
		t.Fatalf("failed to create test registration: %v", err)
	}

	return user
}

// CreateTestTeam creates a team captained by the given user and links the
// captain's membership and registration.
func CreateTestTeam(t *testing.T, db *gorm.DB, captain *models.User, name string) *models.Team {
	t.Helper()

	team := &models.Team{
		Base:       models.Base{ID: uuid.New()},
		Name:       name,
		InviteCode: strings.ToUpper(uuid.New().String()[:6]),
		CaptainID:  captain.ID,
	}
	if err := db.Create(team).Error; err != nil {
		t.Fatalf("failed to create test team: %v", err)
	}

	if err := db.Model(&models.User{}).Where("id = ?", captain.ID).
		Update("team_id", team.ID).Error; err != nil {
		t.Fatalf("failed to link captain: %v", err)
	}
	captain.TeamID = &team.ID

	if err := db.Model(&models.Registration{}).Where("user_id = ?", captain.ID).
		Updates(map[string]interface{}{
			"team_id": team.ID,
			"status":  models.StatusTeamIncomplete,
		}).Error; err != nil {
		t.Fatalf("failed to update captain registration: %v", err)
	}

	return team
}

// AddTestMember puts an existing user into an existing team.
func AddTestMember(t *testing.T, db *gorm.DB, team *models.Team, user *models.User) {
	t.Helper()

	if err := db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("team_id", team.ID).Error; err != nil {
		t.Fatalf("failed to add member: %v", err)
	}
	user.TeamID = &team.ID

	if err := db.Model(&models.Registration{}).Where("user_id = ?", user.ID).
		Updates(map[string]interface{}{
			"team_id": team.ID,
			"status":  models.StatusTeamIncomplete,
		}).Error; err != nil {
		t.Fatalf("failed to update member registration: %v", err)
	}
}

// CreateTestRoom inserts a room with the given number.
func CreateTestRoom(t *testing.T, db *gorm.DB, number int, name string) *models.Room {
	t.Helper()

	room := &models.Room{Number: number, Name: name}
	if err := db.Create(room).Error; err != nil {
		t.Fatalf("failed to create test room: %v", err)
	}
	return room
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// FakeEnqueuer records enqueued tasks instead of talking to redis.
type FakeEnqueuer struct {
	mu    sync.Mutex
	Tasks []*asynq.Task
}

func (f *FakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tasks = append(f.Tasks, task)
	return &asynq.TaskInfo{ID: uuid.New().String(), Type: task.Type()}, nil
}

// TypeCount returns how many recorded tasks have the given type.
func (f *FakeEnqueuer) TypeCount(taskType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, task := range f.Tasks {
		if task.Type() == taskType {
			n++
		}
	}
	return n
}

// LastOfType returns the most recent recorded task of the given type.
func (f *FakeEnqueuer) LastOfType(taskType string) *asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Tasks) - 1; i >= 0; i-- {
		if f.Tasks[i].Type() == taskType {
			return f.Tasks[i]
		}
	}
	return nil
}
