package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatform/backend/internal/model/form"
	"github.com/chatform/backend/internal/service/gateway"
)

var (
	ErrInvalidSchema   = errors.New("invalid schema")
	ErrSessionNotFound = errors.New("session not found")
)

// ConversationGateway abstracts the conversational AI backend the store
// forwards turns to.
type ConversationGateway interface {
	CreateConversation(ctx context.Context, schema form.Schema) (*gateway.Conversation, string, error)
	Turn(ctx context.Context, conv *gateway.Conversation, message string) (form.RawTurnResult, error)
}

// record is one live session. The conversation handle is owned exclusively
// by the record and dropped with it.
type record struct {
	id        string
	schema    form.Schema
	conv      *gateway.Conversation
	formData  map[string]string
	createdAt time.Time
}

// Store holds all live sessions in memory. Map access is guarded by the
// mutex; gateway turns run outside it. Two in-flight turns against the same
// session merge in result-arrival order rather than request order — an
// accepted race under the one-user-per-session usage model.
type Store struct {
	mu       sync.RWMutex
	gateway  ConversationGateway
	sessions map[string]*record
}

// NewStore bootstraps an empty in-memory session store.
func NewStore(gw ConversationGateway) *Store {
	return &Store{
		gateway:  gw,
		sessions: make(map[string]*record),
	}
}

// Created reports the outcome of a successful session creation.
type Created struct {
	SessionID string
	Greeting  string
}

// Create validates the schema, obtains a fresh conversation handle and
// inserts a new session with empty accumulated form data.
func (s *Store) Create(ctx context.Context, schema form.Schema) (Created, error) {
	if !schema.Valid() {
		return Created{}, ErrInvalidSchema
	}

	conv, greeting, err := s.gateway.CreateConversation(ctx, schema)
	if err != nil {
		return Created{}, err
	}

	rec := &record{
		id:        uuid.NewString(),
		schema:    schema.Clone(),
		conv:      conv,
		formData:  make(map[string]string),
		createdAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[rec.id] = rec
	s.mu.Unlock()

	return Created{SessionID: rec.id, Greeting: greeting}, nil
}

// SendMessage forwards one user message over the session's conversation and
// folds the extraction result into the accumulated form data. The returned
// form data is a snapshot, never a live reference.
func (s *Store) SendMessage(ctx context.Context, sessionID, message string) (form.TurnReply, error) {
	s.mu.RLock()
	rec, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return form.TurnReply{}, ErrSessionNotFound
	}

	raw, err := s.gateway.Turn(ctx, rec.conv, message)
	if err != nil {
		return form.TurnReply{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The session may have been deleted or swept while the turn was in
	// flight; its accumulated state is gone with it.
	if _, ok := s.sessions[sessionID]; !ok {
		return form.TurnReply{}, ErrSessionNotFound
	}

	return applyTurn(rec.formData, raw), nil
}

// Delete removes the session if present. Idempotent.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

// Has reports whether a session exists.
func (s *Store) Has(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Info returns a snapshot of the session's state, or nil when unknown.
func (s *Store) Info(sessionID string) *form.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	return &form.SessionSummary{
		SessionID: rec.id,
		Schema:    rec.schema.Clone(),
		CreatedAt: rec.createdAt,
		FormData:  snapshot(rec.formData),
	}
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ListIDs returns the identifiers of all live sessions in no particular
// order.
func (s *Store) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SweepExpired deletes every session older than maxAge, measured from
// creation time only — sessions are never touched to extend their life.
// Returns the number of sessions removed.
func (s *Store) SweepExpired(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.sessions {
		if rec.createdAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
