package handlers

import (
	"log/slog"
	"net/http"

	"github.com/acectf/registration/internal/api/dto"
	"github.com/acectf/registration/internal/ctfd"
	"github.com/acectf/registration/internal/tasks"
)

type CTFdHandler struct {
	client *ctfd.Client
	syncer *ctfd.Syncer
	queue  tasks.Enqueuer
	logger *slog.Logger
}

func NewCTFdHandler(client *ctfd.Client, syncer *ctfd.Syncer, queue tasks.Enqueuer, logger *slog.Logger) *CTFdHandler {
	return &CTFdHandler{client: client, syncer: syncer, queue: queue, logger: logger}
}

// SyncScores triggers a score pull outside the cron schedule. With a worker
// attached the pull runs there; without one it runs inline.
func (h *CTFdHandler) SyncScores(w http.ResponseWriter, r *http.Request) {
	if !h.client.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, dto.Fail("L'intégration CTFd n'est pas configurée."))
		return
	}

	if h.queue != nil {
		if _, err := h.queue.Enqueue(tasks.NewScoreSyncTask()); err == nil {
			writeJSON(w, http.StatusAccepted, dto.OK("Synchronisation des scores lancée.", nil))
			return
		}
		h.logger.Warn("failed to enqueue score sync, running inline")
	}

	updated, err := h.syncer.SyncScores(r.Context())
	if err != nil {
		h.logger.Error("inline score sync failed", "error", err)
		writeJSON(w, http.StatusBadGateway, dto.Fail("La synchronisation des scores a échoué."))
		return
	}

	writeJSON(w, http.StatusOK, dto.OK("Scores synchronisés.", map[string]interface{}{
		"updatedTeams": updated,
	}))
}

func (h *CTFdHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.client.Enabled() {
		writeJSON(w, http.StatusOK, dto.OK("", map[string]interface{}{
			"configured": false,
			"reachable":  false,
		}))
		return
	}

	reachable := h.client.Health(r.Context())
	writeJSON(w, http.StatusOK, dto.OK("", map[string]interface{}{
		"configured": true,
		"reachable":  reachable,
	}))
}
