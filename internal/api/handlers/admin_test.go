package handlers_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/acectf/registration/internal/api/dto"
	"github.com/acectf/registration/internal/api/handlers"
	"github.com/acectf/registration/internal/api/middleware"
	"github.com/acectf/registration/internal/database/models"
	"github.com/acectf/registration/internal/reporting"
	"github.com/acectf/registration/internal/rooms"
	"github.com/acectf/registration/internal/teams"
	"github.com/acectf/registration/internal/testutil"
)

func setupAdminRouter(t *testing.T) (*chi.Mux, *gorm.DB, string) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := slog.Default()
	jwtService := testutil.CreateTestJWTService()
	reportingService := reporting.NewService(db)
	roomService := rooms.NewService(db, logger)
	teamService := teams.NewService(db, &testutil.FakeEnqueuer{}, logger)
	handler := handlers.NewAdminHandler(reportingService, roomService, teamService, logger)

	admin := testutil.CreateTestUser(t, db, testutil.Admin())
	adminToken := testutil.GenerateTestToken(t, jwtService, admin)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(jwtService))
		r.Use(middleware.RequireAdmin)
		r.Route("/api/v1/admin", func(r chi.Router) {
			r.Get("/stats", handler.Stats)
			r.Get("/registrations", handler.Registrations)
			r.Get("/export/csv", handler.ExportCSV)
			r.Get("/teams", handler.Teams)
			r.Put("/users/{id}", handler.UpdateUser)
			r.Delete("/teams/{id}", handler.DeleteTeam)
			r.Get("/rooms", handler.ListRooms)
			r.Post("/rooms", handler.AddRoom)
			r.Post("/rooms/assign", handler.AssignRooms)
			r.Patch("/rooms/{number}", handler.RenameRoom)
			r.Delete("/rooms/{number}", handler.DeleteRoom)
			r.Post("/registrations/{id}/check-in", handler.CheckInRegistration)
			r.Post("/registrations/{id}/cancel", handler.CancelRegistration)
		})
	})

	return r, db, adminToken
}

func TestAdminHandler_Stats(t *testing.T) {
	router, db, token := setupAdminRouter(t)

	testutil.CreateTestUser(t, db, testutil.Verified())
	testutil.CreateTestUser(t, db)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/admin/stats", nil, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)

	var stats reporting.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	// Admin account included in the totals.
	assert.EqualValues(t, 3, stats.Overview.TotalRegistrations)
}

func TestAdminHandler_Registrations(t *testing.T) {
	router, db, token := setupAdminRouter(t)

	testutil.CreateTestUser(t, db, testutil.Verified(), testutil.WithSchool("Lycée Hugo"))
	testutil.CreateTestUser(t, db, testutil.WithSchool("Lycée Voltaire"))

	t.Run("school filter", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/admin/registrations?school=Lycée+Hugo", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		env := decodeEnvelope(t, rr)

		var regs []dto.RegistrationDTO
		require.NoError(t, json.Unmarshal(env.Data, &regs))
		require.Len(t, regs, 1)
	})

	t.Run("status filter", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/admin/registrations?status=pending", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		env := decodeEnvelope(t, rr)

		var regs []dto.RegistrationDTO
		require.NoError(t, json.Unmarshal(env.Data, &regs))
		require.Len(t, regs, 1)
	})
}

func TestAdminHandler_ExportCSV(t *testing.T) {
	router, db, token := setupAdminRouter(t)

	testutil.CreateTestUser(t, db, testutil.Verified())

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/admin/export/csv", nil, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".csv")

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	assert.Contains(t, lines[0], "Prénom")
	assert.Contains(t, lines[0], "Email")
	// Admin plus one participant.
	assert.Len(t, lines, 3)
}

func TestAdminHandler_UpdateUser(t *testing.T) {
	router, db, token := setupAdminRouter(t)

	user := testutil.CreateTestUser(t, db, testutil.Verified())

	t.Run("updates provided fields", func(t *testing.T) {
		body := map[string]string{"school": "Lycée Condorcet"}

		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/"+user.ID.String(), body, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var reloaded models.User
		require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
		assert.Equal(t, "Lycée Condorcet", reloaded.School)
	})

	t.Run("empty body is rejected", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/"+user.ID.String(),
			map[string]string{}, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/00000000-0000-0000-0000-000000000001",
			map[string]string{"school": "Nulle Part"}, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAdminHandler_Rooms(t *testing.T) {
	router, db, token := setupAdminRouter(t)

	testutil.CreateTestRoom(t, db, 1, "Salle 1")

	t.Run("list", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/admin/rooms", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		env := decodeEnvelope(t, rr)

		var list []dto.RoomDTO
		require.NoError(t, json.Unmarshal(env.Data, &list))
		require.Len(t, list, 1)
		assert.Equal(t, 1, list[0].Number)
	})

	t.Run("add picks the next number", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/admin/rooms", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		env := decodeEnvelope(t, rr)

		var room dto.RoomDTO
		require.NoError(t, json.Unmarshal(env.Data, &room))
		assert.Equal(t, 2, room.Number)
	})

	t.Run("rename", func(t *testing.T) {
		body := map[string]string{"name": "Salle Enigma"}

		req := testutil.AuthenticatedRequest(t, "PATCH", "/api/v1/admin/rooms/1", body, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var room models.Room
		require.NoError(t, db.First(&room, "number = ?", 1).Error)
		assert.Equal(t, "Salle Enigma", room.Name)
	})

	t.Run("rename unknown room", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "PATCH", "/api/v1/admin/rooms/99",
			map[string]string{"name": "Introuvable"}, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("delete releases assigned teams", func(t *testing.T) {
		captain := testutil.CreateTestUser(t, db, testutil.Verified())
		team := testutil.CreateTestTeam(t, db, captain, "Les Détachés")

		require.NoError(t, db.Model(&models.Team{}).Where("id = ?", team.ID).
			Update("room_id", 2).Error)

		req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/admin/rooms/2", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var reloaded models.Team
		require.NoError(t, db.First(&reloaded, "id = ?", team.ID).Error)
		assert.Nil(t, reloaded.RoomID)
	})
}

func TestAdminHandler_AssignRooms(t *testing.T) {
	router, db, token := setupAdminRouter(t)

	testutil.CreateTestRoom(t, db, 1, "Salle 1")
	captain := testutil.CreateTestUser(t, db, testutil.Verified())
	team := testutil.CreateTestTeam(t, db, captain, "Les Assignés")

	body := map[string]interface{}{
		"assignments": []map[string]interface{}{
			{"teamId": team.ID.String(), "roomNumber": 1},
			{"teamId": "not-a-uuid", "roomNumber": 1},
		},
	}

	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/admin/rooms/assign", body, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)

	var resp dto.AssignRoomsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 1, resp.Applied)
	assert.Equal(t, []string{"not-a-uuid"}, resp.Failed)

	var reloaded models.Team
	require.NoError(t, db.First(&reloaded, "id = ?", team.ID).Error)
	require.NotNil(t, reloaded.RoomID)
	assert.Equal(t, 1, *reloaded.RoomID)
}

func TestAdminHandler_RegistrationTransitions(t *testing.T) {
	router, db, token := setupAdminRouter(t)

	user := testutil.CreateTestUser(t, db, testutil.Verified())

	var reg models.Registration
	require.NoError(t, db.First(&reg, "user_id = ?", user.ID).Error)

	t.Run("check-in", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST",
			"/api/v1/admin/registrations/"+reg.ID.String()+"/check-in", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var reloaded models.Registration
		require.NoError(t, db.First(&reloaded, "id = ?", reg.ID).Error)
		assert.Equal(t, models.StatusCheckedIn, reloaded.Status)
		assert.NotNil(t, reloaded.CheckedInAt)
	})

	t.Run("cancel", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST",
			"/api/v1/admin/registrations/"+reg.ID.String()+"/cancel", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var reloaded models.Registration
		require.NoError(t, db.First(&reloaded, "id = ?", reg.ID).Error)
		assert.Equal(t, models.StatusCancelled, reloaded.Status)
	})

	t.Run("unknown registration", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST",
			"/api/v1/admin/registrations/00000000-0000-0000-0000-000000000001/check-in", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAdminHandler_RequiresAdmin(t *testing.T) {
	router, db, _ := setupAdminRouter(t)

	jwtService := testutil.CreateTestJWTService()
	user := testutil.CreateTestUser(t, db, testutil.Verified())
	token := testutil.GenerateTestToken(t, jwtService, user)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/admin/stats", nil, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}
