package ctfd

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/acectf/registration/internal/database/models"
)

// Syncer pulls the external scoreboard and writes score/rank back onto
// local teams matched by their stored CTFd team id.
type Syncer struct {
	db     *gorm.DB
	client *Client
	logger *slog.Logger
}

func NewSyncer(db *gorm.DB, client *Client, logger *slog.Logger) *Syncer {
	return &Syncer{db: db, client: client, logger: logger}
}

// SyncScores returns the number of teams updated. Teams without an external
// id, and scoreboard rows without a local team, are skipped.
func (s *Syncer) SyncScores(ctx context.Context) (int, error) {
	if !s.client.Enabled() {
		return 0, nil
	}

	scoreboard, err := s.client.Scoreboard(ctx)
	if err != nil {
		return 0, err
	}

	byCTFdID := make(map[int]ScoreboardEntry, len(scoreboard))
	for _, entry := range scoreboard {
		byCTFdID[entry.TeamID] = entry
	}

	var teams []models.Team
	if err := s.db.WithContext(ctx).
		Where("ctfd_team_id IS NOT NULL").
		Find(&teams).Error; err != nil {
		return 0, err
	}

	updated := 0
	for _, team := range teams {
		entry, ok := byCTFdID[*team.CTFdTeamID]
		if !ok {
			continue
		}
		err := s.db.WithContext(ctx).Model(&models.Team{}).
			Where("id = ?", team.ID).
			Updates(map[string]interface{}{
				"current_score": entry.Score,
				"rank":          entry.Pos,
			}).Error
		if err != nil {
			s.logger.Error("failed to update team score", "team", team.Name, "error", err)
			continue
		}
		updated++
	}

	s.logger.Info("scores synchronized", "teams", updated)
	return updated, nil
}
