// File: internal/session/registry.go

// Package session owns per-session conversation history and the turn-scoped
// artifacts (plan, tool log, pending frontend actions) the agent loop
// produces. One record exists per session id; all mutation of a record goes
// through its exclusive lock so concurrent turns on the same id serialize.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is one entry of a session's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Plan is the short structured statement of goal and steps the agent intends
// to pursue in the current turn.
type Plan struct {
	Goal            string   `json:"goal"`
	Steps           []string `json:"steps"`
	NeedsUser       []string `json:"needs_user"`
	ConfirmRequired bool     `json:"confirm_required"`
}

// Action is an instruction emitted to the calling client to perform a
// UI-level effect. Type is an extensible tag; "open_url" is the only kind
// currently produced.
type Action struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Session bundles the state scoped to one session id. History persists for
// the session's lifetime (bounded); plan, logs and actions persist for a
// single turn only.
type Session struct {
	id string

	mu         sync.Mutex
	history    []Message
	plan       *Plan
	logs       []string
	actions    []Action
	lastActive time.Time
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// The methods below assume the caller holds the record lock obtained through
// Registry.Acquire.

// BeginTurn clears the turn-scoped stores. Called at the start of every turn.
func (s *Session) BeginTurn() {
	s.plan = nil
	s.logs = s.logs[:0]
	s.actions = s.actions[:0]
}

// AppendMessage appends to the conversation history, evicting the oldest
// entries beyond the configured bound.
func (s *Session) AppendMessage(role, content string, maxMessages int) {
	s.history = append(s.history, Message{Role: role, Content: content})
	if maxMessages > 0 && len(s.history) > maxMessages {
		s.history = append(s.history[:0], s.history[len(s.history)-maxMessages:]...)
	}
}

// History returns a copy of the conversation history.
func (s *Session) History() []Message {
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// SetPlan stores the turn's plan, overwriting any previous one.
func (s *Session) SetPlan(p *Plan) { s.plan = p }

// Plan returns the turn's plan, or nil if none was produced.
func (s *Session) Plan() *Plan { return s.plan }

// AppendLog appends a human-readable line to the turn's tool log.
func (s *Session) AppendLog(line string) { s.logs = append(s.logs, line) }

// Logs returns a copy of the turn's tool log.
func (s *Session) Logs() []string {
	out := make([]string, len(s.logs))
	copy(out, s.logs)
	return out
}

// PushAction enqueues an action for the frontend to consume after the turn.
func (s *Session) PushAction(a Action) { s.actions = append(s.actions, a) }

// Actions returns a copy of the turn's pending actions.
func (s *Session) Actions() []Action {
	out := make([]Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Registry owns one Session record per session id. Records are created on
// first reference and reclaimed by the idle sweeper.
type Registry struct {
	logger      *zap.Logger
	maxMessages int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose histories are bounded to twice the
// given number of remembered turns.
func NewRegistry(maxTurns int, logger *zap.Logger) *Registry {
	return &Registry{
		logger:      logger.Named("session_registry"),
		maxMessages: maxTurns * 2,
		sessions:    make(map[string]*Session),
	}
}

// MaxMessages returns the history bound applied on append.
func (r *Registry) MaxMessages() int { return r.maxMessages }

// Acquire returns the session record for the id (creating it on first
// reference) with its exclusive lock held, plus the release function. All
// turn processing for one session id serializes on this lock.
func (r *Registry) Acquire(id string) (*Session, func()) {
	for {
		r.mu.Lock()
		s, ok := r.sessions[id]
		if !ok {
			s = &Session{id: id}
			r.sessions[id] = s
			r.logger.Debug("Session created.", zap.String("session_id", id))
		}
		r.mu.Unlock()

		s.mu.Lock()
		// The sweeper may have evicted the record while we waited for its
		// lock; writes on an orphaned record would vanish, so retry.
		r.mu.Lock()
		current := r.sessions[id] == s
		r.mu.Unlock()
		if !current {
			s.mu.Unlock()
			continue
		}
		s.lastActive = time.Now()
		return s, s.mu.Unlock
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions that have been idle longer than ttl. Records whose
// lock is currently held are skipped; they are by definition not idle.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Info("Swept idle sessions.", zap.Int("evicted", evicted), zap.Duration("ttl", ttl))
	}
	return evicted
}

// RunSweeper periodically evicts idle sessions until the context is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ttl)
		}
	}
}
