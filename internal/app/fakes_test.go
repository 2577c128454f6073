package app

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"moscowboard/api/internal/config"
	"moscowboard/api/internal/logging"
	"moscowboard/api/internal/store"
)

// fakeStore is an in-memory DataStore and SessionStore. The Fn fields
// override single operations.
type fakeStore struct {
	mu              sync.Mutex
	users           map[string]store.User
	functionalities []store.Functionality
	entries         []store.ChangeLogEntry
	refresh         map[string]string
	revoked         map[string]bool
	commits         int
	clock           time.Time

	pingFn   func(context.Context) error
	commitFn func(context.Context, *store.Batch) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]store.User{},
		refresh: map[string]string{},
		revoked: map[string]bool{},
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.CreatedAt = f.clock
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) deleteUser(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

func (f *fakeStore) ListFunctionalities(context.Context) ([]store.Functionality, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Functionality(nil), f.functionalities...), nil
}

func (f *fakeStore) GetFunctionality(_ context.Context, id string) (store.Functionality, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.functionalities {
		if item.ID == id {
			return item, nil
		}
	}
	return store.Functionality{}, store.ErrNotFound
}

func (f *fakeStore) ListChangeLog(_ context.Context, limit int) ([]store.ChangeLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]store.ChangeLogEntry(nil), f.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListChangeLogFor(_ context.Context, id string) ([]store.ChangeLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ChangeLogEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].FunctionalityID == id {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

// Commit mirrors SQLStore: moves check their precondition and nothing is
// applied unless every op succeeds.
func (f *fakeStore) Commit(ctx context.Context, b *store.Batch) error {
	if f.commitFn != nil {
		if err := f.commitFn(ctx, b); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++

	items := append([]store.Functionality(nil), f.functionalities...)
	for _, m := range b.Moves() {
		idx := -1
		for i := range items {
			if items[i].ID == m.ID {
				idx = i
			}
		}
		if idx < 0 {
			return store.ErrNotFound
		}
		if items[idx].Priority != m.From {
			return store.ErrStalePriority
		}
		items[idx].Priority = m.To
	}

	f.clock = f.clock.Add(time.Second)
	b.Stamp(f.clock)
	for _, m := range b.Moves() {
		for i := range items {
			if items[i].ID == m.ID {
				items[i].UpdatedAt = f.clock
			}
		}
	}
	for _, created := range b.Functionalities() {
		created.Seq = int64(len(items) + 1)
		items = append(items, created)
	}
	f.functionalities = items
	for _, e := range b.Entries() {
		e.Seq = int64(len(f.entries) + 1)
		f.entries = append(f.entries, e)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[hash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, hash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.refresh[hash]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return store.User{ID: id}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, hash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) snapshot() ([]store.Functionality, []store.ChangeLogEntry, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Functionality(nil), f.functionalities...), append([]store.ChangeLogEntry(nil), f.entries...), f.commits
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		DefaultLocale: "en",
	}
}

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	return New(testConfig(), Deps{Store: fs, Logger: logging.Discard()})
}

func mustRegister(t *testing.T, svc *Service, name string) Session {
	t.Helper()
	session, err := svc.Register(context.Background(), name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return session
}
