package services

import (
	"context"
	"sync"
	"time"

	"edupath_go/config"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services/notifications"
)

type sentNotification struct {
	UserIDs []uint
	Role    string
	Payload notifications.Payload
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) EnqueueOrCreate(_ context.Context, ids []uint, p notifications.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{UserIDs: ids, Payload: p})
	return nil
}

func (f *fakeNotifier) NotifyRole(_ context.Context, role string, p notifications.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{Role: role, Payload: p})
	return nil
}

func (f *fakeNotifier) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.Payload.Title)
	}
	return out
}

type published struct {
	Collection string
	ID         uint
	Data       interface{}
}

type fakePublisher struct {
	mu          sync.Mutex
	docs        []published
	collections []string
}

func (f *fakePublisher) PublishDocument(collection string, id uint, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, published{collection, id, data})
}

func (f *fakePublisher) PublishCollection(collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections = append(f.collections, collection)
}

func (f *fakePublisher) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.docs {
		if d.Collection == collection {
			n++
		}
	}
	return n
}

var testTemplates = config.StageTemplateSet{
	Application: []string{"Profile Assessment", "Document Collection", "University Application"},
	Visa:        []string{"Visa Application", "Visa Decision"},
}

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestStore() *repository.MemoryStore {
	store := repository.NewMemoryStore()
	store.SetClock(fixedClock)
	return store
}

// seedStudent creates an active student user with a profile.
func seedStudent(store *repository.MemoryStore, email string) (*models.User, *models.Student) {
	ctx := context.Background()
	u := &models.User{Email: email, FullName: "Test Student", Role: models.RoleStudent, Status: models.UserActive}
	if err := store.Users().Create(ctx, u); err != nil {
		panic(err)
	}
	st := &models.Student{UserID: u.ID, FirstName: "Test", LastName: "Student"}
	if err := store.Students().Create(ctx, st); err != nil {
		panic(err)
	}
	return u, st
}

func seedAdmin(store *repository.MemoryStore, email string) *models.User {
	u := &models.User{Email: email, FullName: "Advisor", Role: models.RoleAdmin, Status: models.UserActive}
	if err := store.Users().Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}
