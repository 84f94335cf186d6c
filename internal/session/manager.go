package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultIdleTimeout closes sessions nobody touched for this long
const DefaultIdleTimeout = 2 * time.Hour

// Info summarises a session for listings
type Info struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id,omitempty"`
	Loaded     bool      `json:"loaded"`
	Dirty      bool      `json:"dirty"`
	FieldCount int       `json:"field_count"`
	LastActive time.Time `json:"last_active"`
}

// Manager owns the open sessions
type Manager struct {
	opts        Options
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	onClose  func(id string)
}

// NewManager creates a manager. Every session it creates shares opts.
func NewManager(opts Options, idleTimeout time.Duration) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		opts:        opts,
		idleTimeout: idleTimeout,
		logger:      opts.Logger,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
}

// SetPublisher replaces the hook that receives state changes. It only
// affects sessions created afterwards.
func (m *Manager) SetPublisher(fn PublishFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Publish = fn
}

// OnClose registers fn to run after a session is closed or expires. fn is
// called without the manager lock held.
func (m *Manager) OnClose(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

func (m *Manager) closed(ids ...string) {
	m.mu.RLock()
	fn := m.onClose
	m.mu.RUnlock()
	if fn == nil {
		return
	}
	for _, id := range ids {
		fn(id)
	}
}

// Create opens a new empty session
func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := New(id, m.opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.sessions[id] = s
	m.logger.Info("session created", zap.String("session", id))
	return s, nil
}

// Get returns an open session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Close removes a session
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.logger.Info("session closed", zap.String("session", id))
	m.closed(id)
	return nil
}

// List returns every open session, most recently active first
func (m *Manager) List() []Info {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(open))
	for _, s := range open {
		s.mu.Lock()
		out = append(out, Info{
			ID:         s.id,
			TemplateID: s.templateID,
			Loaded:     s.loaded,
			Dirty:      s.fields.Dirty(),
			FieldCount: s.fields.Len(),
			LastActive: s.lastActive,
		})
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns
// how many were closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, id)
			m.logger.Info("session expired", zap.String("session", id))
		}
	}
	m.mu.Unlock()

	m.closed(expired...)
	return len(expired)
}

// Run sweeps idle sessions periodically until ctx is done
func (m *Manager) Run(ctx context.Context) {
	interval := m.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("idle sessions swept", zap.Int("closed", n))
			}
		}
	}
}
