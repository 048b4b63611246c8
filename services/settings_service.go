package services

import (
	"context"
	"errors"
	"strings"

	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/utils"
)

var allowedLanguages = map[string]struct{}{
	"en":   {},
	"th":   {},
	"zh":   {},
	"auto": {},
}

// UpdateUserSettingsInput holds the fields a user may change. Nil fields
// keep their current value.
type UpdateUserSettingsInput struct {
	Language                 *string `json:"language"`
	EnableNotificationSound  *bool   `json:"enable_notification_sound"`
	NotificationSound        *string `json:"notification_sound"`
	EnableEmailNotifications *bool   `json:"enable_email_notifications"`
	EnableLineNotifications  *bool   `json:"enable_line_notifications"`
}

// SettingsResponse bundles settings with the selectable sounds.
type SettingsResponse struct {
	Settings              models.UserSettings              `json:"settings"`
	NotificationSoundFile string                           `json:"notification_sound_file,omitempty"`
	AvailableSounds       []models.NotificationSoundOption `json:"available_sounds"`
	LineLinked            bool                             `json:"line_linked"`
}

// SettingsService manages per-user preferences.
type SettingsService struct {
	store repository.Store
}

func NewSettingsService(store repository.Store) *SettingsService {
	return &SettingsService{store: store}
}

// Get returns the saved settings or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context, userID uint) (*models.UserSettings, error) {
	settings, err := s.store.Settings().Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		def := models.DefaultUserSettings(userID)
		return &def, nil
	}
	return settings, err
}

// Update validates input and persists the merged settings.
func (s *SettingsService) Update(ctx context.Context, userID uint, in UpdateUserSettingsInput) (*models.UserSettings, error) {
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return nil, err
	}
	settings, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if in.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*in.Language))
		if _, ok := allowedLanguages[lang]; !ok {
			fields["language"] = "must be one of en, th, zh, auto"
		} else {
			settings.Language = lang
		}
	}
	if in.NotificationSound != nil {
		sound := strings.TrimSpace(*in.NotificationSound)
		if _, ok := soundOption(sound); !ok {
			fields["notification_sound"] = "unknown sound"
		} else {
			settings.NotificationSound = sound
		}
	}
	if len(fields) > 0 {
		return nil, &utils.ValidationError{Fields: fields}
	}
	if in.EnableNotificationSound != nil {
		settings.EnableNotificationSound = *in.EnableNotificationSound
	}
	if in.EnableEmailNotifications != nil {
		settings.EnableEmailNotifications = *in.EnableEmailNotifications
	}
	if in.EnableLineNotifications != nil {
		settings.EnableLineNotifications = *in.EnableLineNotifications
	}

	if err := s.store.Settings().Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Response decorates settings for clients.
func (s *SettingsService) Response(ctx context.Context, settings *models.UserSettings) SettingsResponse {
	resp := SettingsResponse{
		Settings:        *settings,
		AvailableSounds: append([]models.NotificationSoundOption(nil), models.BuiltInNotificationSoundOptions...),
	}
	if opt, ok := soundOption(settings.NotificationSound); ok {
		resp.NotificationSoundFile = opt.File
	}
	if u, err := s.store.Users().GetByID(ctx, settings.UserID); err == nil {
		resp.LineLinked = u.LineID != ""
	}
	return resp
}

func soundOption(id string) (models.NotificationSoundOption, bool) {
	for _, opt := range models.BuiltInNotificationSoundOptions {
		if opt.ID == id {
			return opt, true
		}
	}
	return models.NotificationSoundOption{}, false
}
