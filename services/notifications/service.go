package notifications

import (
	"context"
	"edupath_go/config"
	"edupath_go/database"
	"edupath_go/models"
	"edupath_go/utils"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Channels
const (
	ChannelNormal = "normal"
	ChannelPopup  = "popup"
	ChannelLine   = "line"
	ChannelEmail  = "email"
)

var ErrNoRecipients = errors.New("no user ids")

// Payload is the content of a notification, shared by every recipient.
type Payload struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
	Data     any      `json:"data,omitempty"`
}

// queuedNotification is what the Redis queue stores: one payload for a
// batch of users. The database write stays the source of truth.
type queuedNotification struct {
	UserIDs []uint `json:"user_ids"`
	Payload
	CreatedAt time.Time `json:"created_at"`
}

const redisListKey = "notifications:queue"

// New builds a payload with normalized channels.
func New(title, message, typ string, channels ...string) Payload {
	return Payload{Title: title, Message: message, Type: typ, Channels: normalizeChannels(channels)}
}

// WithData attaches a structured payload (deep links, ids) for the client.
func WithData(title, message, typ string, data any, channels ...string) Payload {
	p := New(title, message, typ, channels...)
	p.Data = data
	return p
}

// WSHub interface for WebSocket broadcasting
type WSHub interface {
	BroadcastToUser(userID uint, message interface{})
}

// Sender delivers a notification over an external channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, user models.User, p Payload) error
}

// Service exposes notification creation with an optional Redis queue.
// If Redis is disabled or unavailable it inserts directly.
type Service struct {
	store    Store
	redis    *redis.Client
	useRedis bool
	wsHub    WSHub
	senders  map[string]Sender
}

var (
	defaultHub     WSHub
	defaultSenders []Sender
)

// SetDefaultWSHub sets the hub used by services created with NewService.
func SetDefaultWSHub(h WSHub) {
	defaultHub = h
}

// SetDefaultSenders sets the external channels used by NewService.
func SetDefaultSenders(senders ...Sender) {
	defaultSenders = senders
}

func NewService() *Service {
	s := NewServiceWith(NewGormStore(database.GetDB()), defaultHub, defaultSenders...)
	s.redis = database.GetRedisClient()
	s.useRedis = config.AppConfig != nil && config.AppConfig.UseRedisNotifications && s.redis != nil
	return s
}

// NewServiceWith builds a service writing directly to store.
func NewServiceWith(store Store, hub WSHub, senders ...Sender) *Service {
	s := &Service{store: store, wsHub: hub, senders: map[string]Sender{}}
	for _, snd := range senders {
		if snd != nil {
			s.senders[snd.Channel()] = snd
		}
	}
	return s
}

// normalizeChannels keeps only allowed values and ensures default channel
func normalizeChannels(in []string) []string {
	allowed := map[string]struct{}{ChannelNormal: {}, ChannelPopup: {}, ChannelLine: {}, ChannelEmail: {}}
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, ch := range in {
		if _, ok := allowed[ch]; ok {
			if _, dup := seen[ch]; !dup {
				out = append(out, ch)
				seen[ch] = struct{}{}
			}
		}
	}
	if len(out) == 0 {
		out = []string{ChannelNormal}
	}
	return out
}

// EnqueueOrCreate stores notifications using the Redis queue if enabled,
// else inserts them directly.
func (s *Service) EnqueueOrCreate(ctx context.Context, userIDs []uint, p Payload) error {
	if len(userIDs) == 0 {
		return ErrNoRecipients
	}
	p.Channels = normalizeChannels(p.Channels)

	if s.useRedis {
		b, err := json.Marshal(queuedNotification{UserIDs: userIDs, Payload: p, CreatedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithError(err).Warn("[notif] Redis queue failed, falling back to direct insert")
	}

	return s.createDirect(ctx, userIDs, p)
}

// NotifyRole sends to every active user holding role.
func (s *Service) NotifyRole(ctx context.Context, role string, p Payload) error {
	ids, err := s.store.UserIDsByRole(ctx, role)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.EnqueueOrCreate(ctx, ids, p)
}

// createDirect writes to the database, pushes over WebSocket and fans out
// to external channels. External failures are logged only.
func (s *Service) createDirect(ctx context.Context, userIDs []uint, p Payload) error {
	if len(userIDs) == 0 {
		return nil
	}
	channels := normalizeChannels(p.Channels)
	// MySQL forbids JSON column defaults, so channels are always written
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		channelsJSON = []byte(`["normal"]`)
	}
	var dataJSON []byte
	if p.Data != nil {
		if b, err := json.Marshal(p.Data); err == nil {
			dataJSON = b
		}
	}

	notifs := make([]models.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		notifs = append(notifs, models.Notification{
			UserID:   uid,
			Title:    p.Title,
			Message:  p.Message,
			Type:     p.Type,
			Channels: channelsJSON,
			Data:     dataJSON,
		})
	}
	if err := s.store.CreateNotifications(ctx, notifs); err != nil {
		return err
	}

	users := map[uint]models.User{}
	if found, err := s.store.FindUsers(ctx, userIDs); err != nil {
		logrus.WithError(err).Warn("[notif] load recipients failed")
	} else {
		for _, u := range found {
			users[u.ID] = u
		}
	}

	for _, n := range notifs {
		if u, ok := users[n.UserID]; ok {
			n.User = u
		}
		if s.wsHub != nil {
			s.wsHub.BroadcastToUser(n.UserID, map[string]interface{}{
				"type": "notification",
				"data": utils.ToNotificationDTO(n),
			})
		}
	}

	if len(s.senders) == 0 {
		return nil
	}
	prefs, err := s.store.SettingsFor(ctx, userIDs)
	if err != nil {
		logrus.WithError(err).Warn("[notif] load preferences failed")
	}
	for _, ch := range channels {
		snd, ok := s.senders[ch]
		if !ok {
			continue
		}
		for _, uid := range userIDs {
			u, ok := users[uid]
			if !ok {
				continue
			}
			if pref, ok := prefs[uid]; ok && !pref.AllowsChannel(ch) {
				continue
			}
			if err := snd.Send(ctx, u, p); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{"channel": ch, "user_id": uid}).Warn("[notif] external delivery failed")
			}
		}
	}
	return nil
}

// StartWorker starts a background worker polling the Redis queue and
// flushing it to the database.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		logrus.Info("[notif] Redis notifications disabled; worker not started")
		return
	}
	go func() {
		logrus.Info("[notif] Redis notification worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				logrus.Info("[notif] Worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, 200)
			}
		}
	}()
}

// flushBatch drains the queue in batches of batchSize.
func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	if s.redis == nil {
		return
	}
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		// Trim first; a crash here loses the batch rather than duplicating it
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			logrus.WithError(err).Warn("[notif] LTrim failed")
		}
		for _, raw := range vals {
			var q queuedNotification
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if err := s.createDirect(ctx, q.UserIDs, q.Payload); err != nil {
				logrus.WithError(err).Error("[notif] DB insert failed")
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}
