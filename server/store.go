package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/ironnotes/internal/protocol"
)

var (
	// ErrNotFound is returned when a user, session or entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a username or email is taken
	ErrExists = errors.New("already exists")
)

// Record is a stored entity and the revision it was last changed at
type Record struct {
	protocol.Entity
	Revision int64
}

// EntityTx reads and writes one user's entities inside a transaction
type EntityTx interface {
	Get(ctx context.Context, id string) (Record, error)
	Put(ctx context.Context, r Record) error
	// Since returns records changed after revision, ordered by revision
	Since(ctx context.Context, revision int64) ([]Record, error)
	// TasksIn returns the tasks of list
	TasksIn(ctx context.Context, listID string) ([]Record, error)
	// Revision is the highest revision handed out so far
	Revision() int64
	// NextRevision hands out a new revision
	NextRevision() int64
}

// Store persists accounts, sessions and entities
type Store interface {
	CreateUser(ctx context.Context, u Account) (string, error)
	UserByName(ctx context.Context, username string) (Account, error)
	UserByID(ctx context.Context, id string) (Account, error)

	CreateSession(ctx context.Context, s Session) error
	Session(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error

	// Update runs fn in a transaction over the user's entities. Nothing fn
	// wrote is kept when it returns an error.
	Update(ctx context.Context, userID string, fn func(tx EntityTx) error) error

	Close() error
}

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]Account
	sessions map[string]Session
	entities map[string]*entitySet
}

type entitySet struct {
	records  map[string]Record
	revision int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]Account),
		sessions: make(map[string]Session),
		entities: make(map[string]*entitySet),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u Account) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return "", ErrExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *MemoryStore) UserByName(_ context.Context, username string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return Account{}, ErrNotFound
}

func (m *MemoryStore) UserByID(_ context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = uuid.NewString()
	s.CreatedAt = time.Now()
	m.sessions[s.Token] = s
	return nil
}

func (m *MemoryStore) Session(_ context.Context, token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, token)
	return nil
}

// Update works on a copy of the user's entities and swaps it in when fn succeeds
func (m *MemoryStore) Update(_ context.Context, userID string, fn func(tx EntityTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.entities[userID]
	if current == nil {
		current = &entitySet{records: make(map[string]Record)}
	}

	work := &entitySet{records: make(map[string]Record, len(current.records)), revision: current.revision}
	for id, r := range current.records {
		work.records[id] = r
	}

	if err := fn(&memoryTx{set: work}); err != nil {
		return err
	}
	m.entities[userID] = work
	return nil
}

func (m *MemoryStore) Close() error { return nil }

type memoryTx struct {
	set *entitySet
}

func (t *memoryTx) Get(_ context.Context, id string) (Record, error) {
	r, ok := t.set.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (t *memoryTx) Put(_ context.Context, r Record) error {
	t.set.records[r.ID] = r
	return nil
}

func (t *memoryTx) Since(_ context.Context, revision int64) ([]Record, error) {
	var out []Record
	for _, r := range t.set.records {
		if r.Revision > revision {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (t *memoryTx) TasksIn(_ context.Context, listID string) ([]Record, error) {
	var out []Record
	for _, r := range t.set.records {
		if r.Type == protocol.TypeTask && r.ListID == listID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (t *memoryTx) Revision() int64 { return t.set.revision }

func (t *memoryTx) NextRevision() int64 {
	t.set.revision++
	return t.set.revision
}
