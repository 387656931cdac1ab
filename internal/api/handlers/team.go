package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/acectf/registration/internal/api/dto"
	"github.com/acectf/registration/internal/api/middleware"
	"github.com/acectf/registration/internal/teams"
)

type TeamHandler struct {
	teamService *teams.Service
	logger      *slog.Logger
}

func NewTeamHandler(teamService *teams.Service, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{teamService: teamService, logger: logger}
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, dto.Fail("Authentification requise."))
		return
	}

	var req dto.CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Corps de requête invalide."))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.Invalid(errs))
		return
	}

	team, err := h.teamService.Create(r.Context(), userID, req.Name)
	if err != nil {
		h.writeTeamError(w, err, "team creation failed")
		return
	}

	loaded, count, err := h.teamService.Get(r.Context(), team.ID)
	if err != nil {
		h.logger.Error("reload created team failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	out := dto.NewTeamDTO(loaded)
	out.MemberCount = int(count)
	writeJSON(w, http.StatusCreated, dto.OK("Équipe créée. Partagez le code d'invitation avec vos coéquipiers.", out))
}

func (h *TeamHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, dto.Fail("Authentification requise."))
		return
	}

	var req dto.JoinTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Corps de requête invalide."))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.Invalid(errs))
		return
	}

	team, err := h.teamService.Join(r.Context(), userID, req.InviteCode)
	if err != nil {
		h.writeTeamError(w, err, "team join failed")
		return
	}

	loaded, count, err := h.teamService.Get(r.Context(), team.ID)
	if err != nil {
		h.logger.Error("reload joined team failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	out := dto.NewTeamDTO(loaded)
	out.MemberCount = int(count)
	writeJSON(w, http.StatusOK, dto.OK("Vous avez rejoint l'équipe "+team.Name+".", out))
}

func (h *TeamHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, dto.Fail("Authentification requise."))
		return
	}

	result, err := h.teamService.Leave(r.Context(), userID)
	if err != nil {
		h.writeTeamError(w, err, "team leave failed")
		return
	}

	message := "Vous avez quitté l'équipe " + result.TeamName + "."
	if result.TeamDeleted {
		message = "L'équipe " + result.TeamName + " a été dissoute."
	}
	writeJSON(w, http.StatusOK, dto.OK(message, map[string]interface{}{
		"teamDeleted": result.TeamDeleted,
	}))
}

func (h *TeamHandler) MyTeam(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, dto.Fail("Authentification requise."))
		return
	}

	team, count, err := h.teamService.MyTeam(r.Context(), userID)
	if err != nil {
		if errors.Is(err, teams.ErrNotInTeam) {
			writeJSON(w, http.StatusNotFound, dto.Fail("Vous n'appartenez à aucune équipe."))
			return
		}
		h.writeTeamError(w, err, "my-team lookup failed")
		return
	}

	out := dto.NewTeamDTO(team)
	out.MemberCount = int(count)
	writeJSON(w, http.StatusOK, dto.OK("", out))
}

// Get serves any authenticated user; the invite code stays captain-only so
// the response is stripped for everyone outside the team.
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Identifiant d'équipe invalide."))
		return
	}

	team, count, err := h.teamService.Get(r.Context(), teamID)
	if err != nil {
		h.writeTeamError(w, err, "team lookup failed")
		return
	}

	userID := middleware.GetUserID(r.Context())
	isMember := false
	for _, m := range team.Members {
		if m.ID == userID {
			isMember = true
			break
		}
	}

	out := dto.NewPublicTeamDTO(team)
	if isMember {
		out = dto.NewTeamDTO(team)
	}
	out.MemberCount = int(count)
	writeJSON(w, http.StatusOK, dto.OK("", out))
}

func (h *TeamHandler) writeTeamError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, teams.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, dto.Fail("Utilisateur introuvable."))
	case errors.Is(err, teams.ErrNotVerified):
		writeJSON(w, http.StatusForbidden, dto.Fail("Vérifiez votre email avant de rejoindre une équipe."))
	case errors.Is(err, teams.ErrAlreadyInTeam):
		writeJSON(w, http.StatusConflict, dto.Fail("Vous appartenez déjà à une équipe."))
	case errors.Is(err, teams.ErrNotInTeam):
		writeJSON(w, http.StatusConflict, dto.Fail("Vous n'appartenez à aucune équipe."))
	case errors.Is(err, teams.ErrNameInvalid):
		writeJSON(w, http.StatusBadRequest, dto.Fail("Le nom d'équipe doit contenir entre 3 et 50 caractères."))
	case errors.Is(err, teams.ErrNameTaken):
		writeJSON(w, http.StatusConflict, dto.Fail("Ce nom d'équipe est déjà pris."))
	case errors.Is(err, teams.ErrInviteNotFound):
		writeJSON(w, http.StatusNotFound, dto.Fail("Code d'invitation invalide."))
	case errors.Is(err, teams.ErrTeamFull):
		writeJSON(w, http.StatusConflict, dto.Fail("Cette équipe est complète (5 membres maximum)."))
	case errors.Is(err, teams.ErrTeamNotFound):
		writeJSON(w, http.StatusNotFound, dto.Fail("Équipe introuvable."))
	default:
		h.logger.Error(logMsg, "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
	}
}
