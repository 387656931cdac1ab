package handlers

import (
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"github.com/acectf/registration/internal/api/dto"
	"github.com/acectf/registration/internal/leaderboard"
)

type PublicHandler struct {
	db     *gorm.DB
	hub    *leaderboard.Hub
	logger *slog.Logger
}

func NewPublicHandler(db *gorm.DB, hub *leaderboard.Hub, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{db: db, hub: hub, logger: logger}
}

// Leaderboard is the projector view: names, scores and rooms only.
func (h *PublicHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := leaderboard.Snapshot(r.Context(), h.db)
	if err != nil {
		h.logger.Error("leaderboard query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}
	writeJSON(w, http.StatusOK, dto.OK("", entries))
}

func (h *PublicHandler) LeaderboardWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}
