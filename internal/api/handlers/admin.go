package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/acectf/registration/internal/api/dto"
	"github.com/acectf/registration/internal/reporting"
	"github.com/acectf/registration/internal/rooms"
	"github.com/acectf/registration/internal/teams"
)

type AdminHandler struct {
	reporting   *reporting.Service
	rooms       *rooms.Service
	teamService *teams.Service
	logger      *slog.Logger
}

func NewAdminHandler(reportingService *reporting.Service, roomService *rooms.Service, teamService *teams.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		reporting:   reportingService,
		rooms:       roomService,
		teamService: teamService,
		logger:      logger,
	}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reporting.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}
	writeJSON(w, http.StatusOK, dto.OK("", stats))
}

func (h *AdminHandler) Registrations(w http.ResponseWriter, r *http.Request) {
	filter := reporting.RegistrationFilter{
		Status: r.URL.Query().Get("status"),
		School: r.URL.Query().Get("school"),
	}
	if raw := r.URL.Query().Get("hasTeam"); raw != "" {
		hasTeam := raw == "true"
		filter.HasTeam = &hasTeam
	}

	regs, err := h.reporting.Registrations(r.Context(), filter)
	if err != nil {
		h.logger.Error("registration listing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	out := make([]dto.RegistrationDTO, 0, len(regs))
	for i := range regs {
		out = append(out, dto.NewRegistrationDTO(&regs[i]))
	}
	writeJSON(w, http.StatusOK, dto.OK("", out))
}

func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := h.reporting.ExportCSV(r.Context())
	if err != nil {
		h.logger.Error("csv export failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	filename := "inscriptions-" + time.Now().Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *AdminHandler) Teams(w http.ResponseWriter, r *http.Request) {
	var filter reporting.TeamFilter
	if raw := r.URL.Query().Get("complete"); raw != "" {
		complete := raw == "true"
		filter.Complete = &complete
	}
	if raw := r.URL.Query().Get("room"); raw != "" {
		if number, err := strconv.Atoi(raw); err == nil {
			filter.RoomNumber = &number
		}
	}

	list, err := h.reporting.Teams(r.Context(), filter)
	if err != nil {
		h.logger.Error("team listing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	out := make([]dto.AdminTeamDTO, 0, len(list))
	for i := range list {
		out = append(out, dto.NewAdminTeamDTO(&list[i]))
	}
	writeJSON(w, http.StatusOK, dto.OK("", out))
}

func (h *AdminHandler) Scores(w http.ResponseWriter, r *http.Request) {
	list, err := h.reporting.Scores(r.Context())
	if err != nil {
		h.logger.Error("score listing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}
	writeJSON(w, http.StatusOK, dto.OK("", list))
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Identifiant utilisateur invalide."))
		return
	}

	var req dto.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Corps de requête invalide."))
		return
	}
	updates := req.Updates()
	if len(updates) == 0 {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Aucun champ à modifier."))
		return
	}

	user, err := h.reporting.UpdateUser(r.Context(), userID, updates)
	if err != nil {
		if errors.Is(err, reporting.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, dto.Fail("Utilisateur introuvable."))
			return
		}
		h.logger.Error("user update failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	writeJSON(w, http.StatusOK, dto.OK("Utilisateur mis à jour.", dto.NewUserDTO(user)))
}

func (h *AdminHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Identifiant d'équipe invalide."))
		return
	}

	if err := h.teamService.Delete(r.Context(), teamID); err != nil {
		if errors.Is(err, teams.ErrTeamNotFound) {
			writeJSON(w, http.StatusNotFound, dto.Fail("Équipe introuvable."))
			return
		}
		h.logger.Error("team deletion failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	writeJSON(w, http.StatusOK, dto.OK("Équipe supprimée. Ses membres redeviennent sans équipe.", nil))
}

func (h *AdminHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	list, err := h.rooms.List(r.Context())
	if err != nil {
		h.logger.Error("room listing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	out := make([]dto.RoomDTO, 0, len(list))
	for _, room := range list {
		out = append(out, dto.RoomDTO{Number: room.Number, Name: room.Name})
	}
	writeJSON(w, http.StatusOK, dto.OK("", out))
}

func (h *AdminHandler) AddRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.Add(r.Context())
	if err != nil {
		h.logger.Error("room creation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}
	writeJSON(w, http.StatusCreated, dto.OK("Salle ajoutée.", dto.RoomDTO{Number: room.Number, Name: room.Name}))
}

func (h *AdminHandler) RenameRoom(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Numéro de salle invalide."))
		return
	}

	var req dto.RenameRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Le nom de salle est requis."))
		return
	}

	if err := h.rooms.Rename(r.Context(), number, req.Name); err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, dto.Fail("Salle introuvable."))
			return
		}
		h.logger.Error("room rename failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	writeJSON(w, http.StatusOK, dto.OK("Salle renommée.", nil))
}

func (h *AdminHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Numéro de salle invalide."))
		return
	}

	if err := h.rooms.Delete(r.Context(), number); err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, dto.Fail("Salle introuvable."))
			return
		}
		h.logger.Error("room deletion failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	writeJSON(w, http.StatusOK, dto.OK("Salle supprimée. Les équipes assignées ont été libérées.", nil))
}

func (h *AdminHandler) AssignRooms(w http.ResponseWriter, r *http.Request) {
	var req dto.AssignRoomsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Corps de requête invalide."))
		return
	}
	if len(req.Assignments) == 0 {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Aucune affectation fournie."))
		return
	}

	assignments := make([]rooms.Assignment, 0, len(req.Assignments))
	failed := make([]string, 0)
	for _, a := range req.Assignments {
		teamID, err := uuid.Parse(a.TeamID)
		if err != nil {
			failed = append(failed, a.TeamID)
			continue
		}
		assignments = append(assignments, rooms.Assignment{TeamID: teamID, RoomNumber: a.RoomNumber})
	}

	applied, notFound, err := h.rooms.Assign(r.Context(), assignments)
	if err != nil {
		h.logger.Error("room assignment failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}
	for _, id := range notFound {
		failed = append(failed, id.String())
	}

	writeJSON(w, http.StatusOK, dto.OK("Affectations appliquées.", dto.AssignRoomsResponse{
		Applied: applied,
		Failed:  failed,
	}))
}

// Registration lifecycle transitions, used at the event desk.

func (h *AdminHandler) CheckInRegistration(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reporting.CheckIn, "Participant pointé.")
}

func (h *AdminHandler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reporting.Complete, "Parcours terminé.")
}

func (h *AdminHandler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reporting.Cancel, "Inscription annulée.")
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) error, message string) {
	regID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Identifiant d'inscription invalide."))
		return
	}

	if err := fn(r.Context(), regID); err != nil {
		if errors.Is(err, reporting.ErrRegistrationNotFound) {
			writeJSON(w, http.StatusNotFound, dto.Fail("Inscription introuvable."))
			return
		}
		h.logger.Error("registration transition failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	writeJSON(w, http.StatusOK, dto.OK(message, nil))
}
