package notifications

import (
	"context"
	"edupath_go/models"

	"gorm.io/gorm"
)

// Store is the persistence the service needs.
type Store interface {
	CreateNotifications(ctx context.Context, notifs []models.Notification) error
	FindUsers(ctx context.Context, ids []uint) ([]models.User, error)
	UserIDsByRole(ctx context.Context, role string) ([]uint, error)
	// SettingsFor returns saved preferences; users without a row use defaults.
	SettingsFor(ctx context.Context, ids []uint) (map[uint]models.UserSettings, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateNotifications(ctx context.Context, notifs []models.Notification) error {
	return s.db.WithContext(ctx).Create(&notifs).Error
}

func (s *gormStore) FindUsers(ctx context.Context, ids []uint) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Select("id", "email", "full_name", "role", "line_id").
		Where("id IN ?", ids).
		Find(&users).Error
	return users, err
}

func (s *gormStore) UserIDsByRole(ctx context.Context, role string) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND status = ?", role, models.UserActive).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *gormStore) SettingsFor(ctx context.Context, ids []uint) (map[uint]models.UserSettings, error) {
	var rows []models.UserSettings
	if err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]models.UserSettings, len(rows))
	for _, r := range rows {
		out[r.UserID] = r
	}
	return out, nil
}
