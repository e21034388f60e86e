// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the lifecycle of an interactive chat session:
// the active conversation, idle timeout, and persistence to the
// history store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/storage"
)

// =============================================================================
// ERRORS AND CONSTANTS
// =============================================================================

var (
	ErrNoSession      = errors.New("no active session")
	ErrSessionActive  = errors.New("session already active")
	ErrSessionExpired = errors.New("session expired")
)

const (
	// DefaultIdleTimeout ends a session after this period of inactivity.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultWarningBefore is how long before expiry the warning fires.
	DefaultWarningBefore = 2 * time.Minute
)

// =============================================================================
// STATE
// =============================================================================

// State represents the session lifecycle state.
type State int

const (
	StateActive State = iota
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsActive reports whether the state still allows activity.
func (s State) IsActive() bool {
	return s == StateActive || s == StateWarning
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one interactive chat session.
type Session struct {
	ID           string
	StartedAt    time.Time
	LastActivity time.Time

	state State

	warningTimer *time.Timer
	expireTimer  *time.Timer

	mu sync.RWMutex
}

// State returns the session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the current session, its conversation, and persistence.
type Manager struct {
	session *Session
	conv    *chat.Conversation

	store *storage.Store // nil disables persistence
	dirty bool

	timeout       time.Duration
	warningBefore time.Duration

	onWarning func()
	onExpired func()

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore enables conversation persistence.
func WithStore(store *storage.Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithIdleTimeout overrides the idle timeout. Zero disables idle
// expiry entirely.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithWarningBefore overrides the warning lead time.
func WithWarningBefore(d time.Duration) Option {
	return func(m *Manager) { m.warningBefore = d }
}

// WithCallbacks sets the warning and expiry callbacks. They are called
// from timer goroutines.
func WithCallbacks(onWarning, onExpired func()) Option {
	return func(m *Manager) {
		m.onWarning = onWarning
		m.onExpired = onExpired
	}
}

// NewManager creates a session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		timeout:       DefaultIdleTimeout,
		warningBefore: DefaultWarningBefore,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a new session with a fresh conversation.
func (m *Manager) Start(model string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.State().IsActive() {
		return nil, ErrSessionActive
	}

	now := time.Now()
	s := &Session{
		ID:           uuid.New().String(),
		StartedAt:    now,
		LastActivity: now,
		state:        StateActive,
	}
	m.session = s
	m.conv = chat.NewConversationWithModel(model)
	m.dirty = false
	m.setupTimers(s)
	return s, nil
}

// Resume begins a session continuing a stored conversation.
func (m *Manager) Resume(ctx context.Context, conversationID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.State().IsActive() {
		return nil, ErrSessionActive
	}
	if m.store == nil {
		return nil, errors.New("no history store configured")
	}

	conv, err := m.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resume conversation: %w", err)
	}

	now := time.Now()
	s := &Session{
		ID:           uuid.New().String(),
		StartedAt:    now,
		LastActivity: now,
		state:        StateActive,
	}
	m.session = s
	m.conv = conv
	m.dirty = false
	m.setupTimers(s)
	return s, nil
}

// setupTimers arms the warning and expiry timers. Caller holds m.mu.
func (m *Manager) setupTimers(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.warningTimer != nil {
		s.warningTimer.Stop()
	}
	if s.expireTimer != nil {
		s.expireTimer.Stop()
	}
	if m.timeout <= 0 {
		return
	}

	warnAfter := m.timeout - m.warningBefore
	if warnAfter < 0 {
		warnAfter = 0
	}

	s.warningTimer = time.AfterFunc(warnAfter, func() {
		s.mu.Lock()
		if s.state != StateActive {
			s.mu.Unlock()
			return
		}
		s.state = StateWarning
		s.mu.Unlock()
		if m.onWarning != nil {
			m.onWarning()
		}
	})

	s.expireTimer = time.AfterFunc(m.timeout, func() {
		s.mu.Lock()
		if s.state == StateExpired {
			s.mu.Unlock()
			return
		}
		s.state = StateExpired
		s.mu.Unlock()
		if m.onExpired != nil {
			m.onExpired()
		}
	})
}

// Touch records activity: it refreshes the last-activity timestamp and
// re-arms the idle timers. Returns ErrSessionExpired once the session
// has timed out.
func (m *Manager) Touch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSession
	}

	m.session.mu.Lock()
	if m.session.state == StateExpired {
		m.session.mu.Unlock()
		return ErrSessionExpired
	}
	m.session.LastActivity = time.Now()
	m.session.state = StateActive
	m.session.mu.Unlock()

	m.setupTimers(m.session)
	return nil
}

// End terminates the session, flushing any unsaved conversation state.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}

	err := m.saveLocked(ctx)

	m.session.mu.Lock()
	if m.session.warningTimer != nil {
		m.session.warningTimer.Stop()
		m.session.warningTimer = nil
	}
	if m.session.expireTimer != nil {
		m.session.expireTimer.Stop()
		m.session.expireTimer = nil
	}
	m.session.state = StateExpired
	m.session.mu.Unlock()

	m.session = nil
	m.conv = nil
	return err
}

// =============================================================================
// CONVERSATION ACCESS AND PERSISTENCE
// =============================================================================

// Conversation returns the active conversation, or nil when no session
// is running.
func (m *Manager) Conversation() *chat.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conv
}

// MarkDirty flags the conversation as having unsaved changes.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = true
}

// SaveIfDirty persists the conversation when it has unsaved changes.
// A nil store or an empty conversation is a no-op.
func (m *Manager) SaveIfDirty(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}
	return m.saveLocked(ctx)
}

// saveLocked writes the conversation to the store. Caller holds m.mu.
func (m *Manager) saveLocked(ctx context.Context) error {
	if m.store == nil || m.conv == nil || m.conv.IsEmpty() {
		m.dirty = false
		return nil
	}
	if err := m.store.Save(ctx, m.conv); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	m.dirty = false
	return nil
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// State returns the session state, StateExpired when none exists.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return StateExpired
	}
	return m.session.State()
}

// TimeRemaining returns the duration until idle expiry, zero when
// expired, absent, or idle timeout is disabled.
func (m *Manager) TimeRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.timeout <= 0 {
		return 0
	}

	m.session.mu.RLock()
	defer m.session.mu.RUnlock()

	if m.session.state == StateExpired {
		return 0
	}
	remaining := m.timeout - time.Since(m.session.LastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}
