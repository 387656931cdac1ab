package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acectf/registration/internal/database/models"
)

var ErrRoomNotFound = errors.New("room not found")

// Service owns the room registry and the team-to-room assignments. Both live
// in the relational store so a deletion clears assignments in the same
// transaction.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).Order("number").Find(&rooms).Error
	return rooms, err
}

// Add creates a room under the next free number with a default name.
func (s *Service) Add(ctx context.Context) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var max *int
		if err := tx.Model(&models.Room{}).Select("MAX(number)").Scan(&max).Error; err != nil {
			return err
		}
		next := 1
		if max != nil {
			next = *max + 1
		}
		room = models.Room{Number: next, Name: fmt.Sprintf("Salle %d", next)}
		return tx.Create(&room).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Service) Rename(ctx context.Context, number int, name string) error {
	result := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("number = ?", number).
		Update("name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// Delete removes a room and unassigns every team that pointed at it.
func (s *Service) Delete(ctx context.Context, number int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Room{}, "number = ?", number)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return tx.Model(&models.Team{}).
			Where("room_id = ?", number).
			Update("room_id", nil).Error
	})
}

// Assignment pairs a team with a room number; number 0 clears the slot.
type Assignment struct {
	TeamID     uuid.UUID `json:"teamId"`
	RoomNumber int       `json:"roomNumber"`
}

// Assign applies each assignment independently and reports per-row failures
// instead of aborting the batch.
func (s *Service) Assign(ctx context.Context, assignments []Assignment) (applied int, failed []uuid.UUID, err error) {
	for _, a := range assignments {
		var value interface{}
		if a.RoomNumber != 0 {
			var room models.Room
			if err := s.db.WithContext(ctx).First(&room, "number = ?", a.RoomNumber).Error; err != nil {
				failed = append(failed, a.TeamID)
				continue
			}
			value = a.RoomNumber
		}
		result := s.db.WithContext(ctx).Model(&models.Team{}).
			Where("id = ?", a.TeamID).
			Update("room_id", value)
		if result.Error != nil || result.RowsAffected == 0 {
			failed = append(failed, a.TeamID)
			continue
		}
		applied++
	}
	if len(failed) > 0 {
		s.logger.Warn("room assignment partially applied", "applied", applied, "failed", len(failed))
	}
	return applied, failed, nil
}

// Names returns the number→name map used by the public leaderboard.
func (s *Service) Names(ctx context.Context) (map[string]string, error) {
	rooms, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(rooms))
	for _, r := range rooms {
		names[fmt.Sprintf("%d", r.Number)] = r.Name
	}
	return names, nil
}
