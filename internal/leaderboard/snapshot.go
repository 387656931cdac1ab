package leaderboard

import (
	"context"

	"gorm.io/gorm"

	"github.com/acectf/registration/internal/database/models"
)

// Entry is one public leaderboard row. Only presentable data, no member or
// contact information.
type Entry struct {
	Rank     int    `json:"rank"`
	TeamName string `json:"teamName"`
	Score    int    `json:"score"`
	RoomName string `json:"roomName,omitempty"`
}

// Snapshot reads the current standings, ordered by score. Teams without a
// synced rank get a positional one.
func Snapshot(ctx context.Context, db *gorm.DB) ([]Entry, error) {
	var teams []models.Team
	if err := db.WithContext(ctx).
		Preload("Room").
		Order("current_score DESC, name ASC").
		Find(&teams).Error; err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(teams))
	for i, team := range teams {
		entry := Entry{
			Rank:     i + 1,
			TeamName: team.Name,
			Score:    team.CurrentScore,
		}
		if team.Rank != nil {
			entry.Rank = *team.Rank
		}
		if team.Room != nil {
			entry.RoomName = team.Room.Name
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
