package utils

import (
	"encoding/json"
	"strings"
	"time"

	"edupath_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID       uint   `json:"id"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

type Sender struct {
	Type string `json:"type"` // "system" or "user"
	ID   *uint  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Recipient struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}

type NotificationDTO struct {
	ID        uint        `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UserID    uint        `json:"user_id"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Type      string      `json:"type"`
	Channels  []string    `json:"channels"`
	Data      interface{} `json:"data,omitempty"`
	Read      bool        `json:"read"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
	User      UserShort   `json:"user"`
	Sender    Sender      `json:"sender"`
	Recipient Recipient   `json:"recipient"`
}

// ToUserShort builds the compact user view, falling back to the email
// local-part when no name is on file.
func ToUserShort(u models.User) UserShort {
	name := strings.TrimSpace(u.FullName)
	if name == "" && u.Email != "" {
		name = strings.SplitN(u.Email, "@", 2)[0]
	}
	return UserShort{ID: u.ID, FullName: name, Email: u.Email, Role: u.Role}
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
// The caller should preload User when possible.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	channels := []string{"normal"}
	if !n.Channels.IsNull() {
		var ch []string
		if err := json.Unmarshal(n.Channels, &ch); err == nil && len(ch) > 0 {
			channels = ch
		}
	}
	var data interface{}
	if !n.Data.IsNull() {
		_ = json.Unmarshal(n.Data, &data)
	}
	user := ToUserShort(n.User)
	if user.ID == 0 {
		user.ID = n.UserID
	}

	return NotificationDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Channels:  channels,
		Data:      data,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		User:      user,
		Sender:    Sender{Type: "system", Name: "EduPath Portal"},
		Recipient: Recipient{Type: "user", ID: n.UserID},
	}
}

// ApplicationDTO is an application with its derived status breakdown.
type ApplicationDTO struct {
	models.Application
	Summary models.AppStatus `json:"summary"`
}

// ToApplicationDTO recomputes the status summary from the loaded stages.
func ToApplicationDTO(app models.Application) ApplicationDTO {
	return ApplicationDTO{Application: app, Summary: models.CalculateAppStatus(app.Stages)}
}

// ToApplicationDTOs maps a slice of applications.
func ToApplicationDTOs(apps []models.Application) []ApplicationDTO {
	out := make([]ApplicationDTO, 0, len(apps))
	for _, a := range apps {
		out = append(out, ToApplicationDTO(a))
	}
	return out
}
