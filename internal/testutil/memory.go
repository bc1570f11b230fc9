package testutil

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/remote"
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("testutil: injected failure")

// MemoryLocal is an in-memory local key-value store.
//
// Setting FailGet, FailSet or FailRemove makes the matching method return
// that error until it is cleared.
type MemoryLocal struct {
	mu     sync.Mutex
	data   map[string]string
	writes int

	FailGet    error
	FailSet    error
	FailRemove error
}

// NewMemoryLocal creates an empty store.
func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{data: make(map[string]string)}
}

func (m *MemoryLocal) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet != nil {
		return "", false, m.FailGet
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryLocal) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		return m.FailSet
	}
	m.data[key] = value
	m.writes++
	return nil
}

func (m *MemoryLocal) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRemove != nil {
		return m.FailRemove
	}
	delete(m.data, key)
	return nil
}

// Writes returns the number of successful Set calls.
func (m *MemoryLocal) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Raw returns the stored value for key, bypassing failure injection.
func (m *MemoryLocal) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Put stores a value, bypassing failure injection.
func (m *MemoryLocal) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Upsert is one recorded MemoryRemote.Upsert call.
type Upsert struct {
	UserID    string
	State     game.State
	UpdatedAt time.Time
}

// MemoryRemote is an in-memory remote store and identity provider.
//
// Gate, when non-nil, makes every Upsert wait for a receive before
// writing, to hold a push in flight. FetchGate does the same for Fetch.
type MemoryRemote struct {
	mu       sync.Mutex
	saves    map[string]remote.Record
	upserts  []Upsert
	accounts map[string]account
	sessions map[string]remote.Session
	nextID   int

	FetchErr  error
	UpsertErr error
	Gate      chan struct{}
	FetchGate chan struct{}
}

type account struct {
	password string
	session  remote.Session
}

var (
	_ remote.Store         = (*MemoryRemote)(nil)
	_ remote.Authenticator = (*MemoryRemote)(nil)
)

// NewMemoryRemote creates an empty remote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		saves:    make(map[string]remote.Record),
		accounts: make(map[string]account),
		sessions: make(map[string]remote.Session),
	}
}

// Seed stores a save directly.
func (m *MemoryRemote) Seed(userID string, s game.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[userID] = remote.Record{State: s.Clone(), UpdatedAt: s.LastSavedTime}
}

// Saved returns the stored save for a user.
func (m *MemoryRemote) Saved(userID string) (game.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.saves[userID]
	return r.State.Clone(), ok
}

// Upserts returns every Upsert call in order.
func (m *MemoryRemote) Upserts() []Upsert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Upsert(nil), m.upserts...)
}

func (m *MemoryRemote) Fetch(ctx context.Context, userID string) (*remote.Record, error) {
	m.mu.Lock()
	gate := m.FetchGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	r, ok := m.saves[userID]
	if !ok {
		return nil, nil
	}
	return &remote.Record{State: r.State.Clone(), UpdatedAt: r.UpdatedAt}, nil
}

func (m *MemoryRemote) Upsert(ctx context.Context, userID string, s game.State, updatedAt time.Time) error {
	m.mu.Lock()
	gate := m.Gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.saves[userID] = remote.Record{State: s.Clone(), UpdatedAt: updatedAt}
	m.upserts = append(m.upserts, Upsert{UserID: userID, State: s.Clone(), UpdatedAt: updatedAt})
	return nil
}

func (m *MemoryRemote) Leaderboard(_ context.Context, limit int) ([]remote.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nick := make(map[string]string, len(m.accounts))
	for _, a := range m.accounts {
		nick[a.session.UserID] = a.session.Nickname
	}

	ids := make([]string, 0, len(m.saves))
	for id := range maps.Keys(m.saves) {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.saves[ids[i]].State, m.saves[ids[j]].State
		if a.PrestigeCount != b.PrestigeCount {
			return a.PrestigeCount > b.PrestigeCount
		}
		if a.CharacterLevel != b.CharacterLevel {
			return a.CharacterLevel > b.CharacterLevel
		}
		if a.Currency != b.Currency {
			return a.Currency > b.Currency
		}
		return ids[i] < ids[j]
	})
	if limit <= 0 {
		limit = remote.DefaultLeaderboardLimit
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]remote.Entry, 0, len(ids))
	for i, id := range ids {
		s := m.saves[id].State
		n := nick[id]
		if n == "" {
			n = remote.DefaultNickname
		}
		out = append(out, remote.Entry{
			Rank:       i + 1,
			Nickname:   n,
			Ascensions: s.PrestigeCount,
			Level:      s.CharacterLevel,
			Energy:     s.Currency,
		})
	}
	return out, nil
}

func (m *MemoryRemote) SignUp(_ context.Context, email, password, nickname string) (remote.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if email == "" || password == "" {
		return remote.Session{}, remote.ErrInvalidCredentials
	}
	if _, ok := m.accounts[email]; ok {
		return remote.Session{}, remote.ErrEmailTaken
	}
	m.nextID++
	sess := remote.Session{
		UserID:   fmt.Sprintf("user-%d", m.nextID),
		Email:    email,
		Nickname: remote.NormalizeNickname(nickname),
	}
	m.accounts[email] = account{password: password, session: sess}
	return m.newSessionLocked(sess), nil
}

func (m *MemoryRemote) SignIn(_ context.Context, email, password string) (remote.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok || a.password != password {
		return remote.Session{}, remote.ErrInvalidCredentials
	}
	return m.newSessionLocked(a.session), nil
}

func (m *MemoryRemote) Resume(_ context.Context, token string) (remote.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return remote.Session{}, remote.ErrNotSignedIn
	}
	return sess, nil
}

func (m *MemoryRemote) SignOut(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return remote.ErrNotSignedIn
	}
	delete(m.sessions, token)
	return nil
}

func (m *MemoryRemote) newSessionLocked(sess remote.Session) remote.Session {
	m.nextID++
	sess.Token = fmt.Sprintf("token-%d", m.nextID)
	m.sessions[sess.Token] = sess
	return sess
}
