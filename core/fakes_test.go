package core

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.SessionBackend = SessionBackendCookie
	cfg.SessionKey = "test-session-key-0123456789abcdef"
	cfg.CSRFEnabled = false
	cfg.StaticDir = ""
	cfg.LogDir = ""
	cfg.StoreTimeout = time.Second
	cfg.LoginRateBurst = 1000
	cfg.BcryptCost = bcrypt.MinCost
	cfg.InitialAdminPasswordPath = ""
	return cfg
}

func discardLogger() *slog.Logger {
	return NewLogger(io.Discard, "error")
}

// memUsers is an in-memory UserRepository. Setting err makes every call fail.
type memUsers struct {
	mu     sync.Mutex
	byName map[string]UserRecord
	nextID int64
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{byName: map[string]UserRecord{}}
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byName[username]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return &u, nil
}

func (m *memUsers) Create(_ context.Context, username, passwordHash string, role Role) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.byName[username]; ok {
		return nil, ErrIdentityExists
	}
	m.nextID++
	u := UserRecord{
		ID:           m.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role.String(),
		CreatedAt:    time.Now(),
	}
	m.byName[username] = u
	return &u, nil
}

func (m *memUsers) HasAdmin(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for _, u := range m.byName {
		if u.Role == RoleAdmin.String() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// memAgenda is an in-memory AgendaRepository.
type memAgenda struct {
	mu     sync.Mutex
	items  map[int64]AgendaItem
	nextID int64
	err    error
}

func newMemAgenda() *memAgenda {
	return &memAgenda{items: map[int64]AgendaItem{}}
}

func (m *memAgenda) List(_ context.Context) ([]AgendaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]AgendaItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAgenda) Create(_ context.Context, imageURL, month, label string) (*AgendaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.nextID++
	it := AgendaItem{ID: m.nextID, ImageURL: imageURL, Month: month, Label: label}
	m.items[it.ID] = it
	return &it, nil
}

func (m *memAgenda) Update(_ context.Context, id int64, imageURL, month, label string) (*AgendaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.items[id]; !ok {
		return nil, ErrAgendaNotFound
	}
	it := AgendaItem{ID: id, ImageURL: imageURL, Month: month, Label: label}
	m.items[id] = it
	return &it, nil
}

func (m *memAgenda) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.items[id]; !ok {
		return ErrAgendaNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memAgenda) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *memAgenda) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
