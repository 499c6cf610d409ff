// Package session implements the TTL-bounded session store: an opaque
// session id maps to a user id, expires 30 days after creation, and is
// swept (deleted) the moment it is read past expiry.
package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mhowlett/infumap/internal/apperr"
	"github.com/mhowlett/infumap/internal/storelog"
)

// TTL is the session lifetime.
const TTL = 30 * 24 * time.Hour

// Session is a single opaque credential bound to a user.
type Session struct {
	ID           string
	UserID       string
	CreationDate int64 // unix millis
}

func (s Session) RecordID() string { return s.ID }

func (s Session) expired(now time.Time) bool {
	created := time.UnixMilli(s.CreationDate)
	return now.After(created.Add(TTL))
}

// Store wraps a storelog.Store[Session] with a userId -> session ids
// index, and sweeps expired sessions lazily on access.
type Store struct {
	log   *zap.Logger
	store *storelog.Store[Session]
	now   func() time.Time

	mu                 sync.Mutex
	sessionIDsByUserID map[string][]string
}

// Load opens (or creates) the session log at dir/filename and sweeps
// every already-expired session found during replay.
func Load(dir, filename string, log *zap.Logger) (*Store, error) {
	store, err := storelog.Init[Session](dir, filename, Codec{}, log)
	if err != nil {
		return nil, err
	}
	s := &Store{
		log:                log,
		store:              store,
		now:                time.Now,
		sessionIDsByUserID: make(map[string][]string),
	}
	for _, sess := range store.Iter() {
		s.sessionIDsByUserID[sess.UserID] = append(s.sessionIDsByUserID[sess.UserID], sess.ID)
	}
	s.sweepExpired()
	return s, nil
}

func (s *Store) sweepExpired() {
	now := s.now()
	for _, sess := range s.store.Iter() {
		if sess.expired(now) {
			if err := s.deleteLocked(sess.ID); err != nil {
				s.log.Warn("failed to sweep expired session", zap.String("sessionId", sess.ID), zap.Error(err))
			}
		}
	}
}

// Create appends a new session bound to userID.
func (s *Store) Create(id, userID string, creationDate int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{ID: id, UserID: userID, CreationDate: creationDate}
	if err := s.store.Add(sess); err != nil {
		return err
	}
	s.sessionIDsByUserID[userID] = append(s.sessionIDsByUserID[userID], id)
	return nil
}

// Get returns the session's user id if id is present and not expired.
// An expired session is deleted as a side effect of this read (S2).
func (s *Store) Get(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.store.Get(id)
	if !ok {
		return "", apperr.New(apperr.Auth, "unknown session")
	}
	if sess.expired(s.now()) {
		if err := s.deleteLocked(id); err != nil {
			return "", err
		}
		return "", apperr.New(apperr.Auth, "session expired")
	}
	return sess.UserID, nil
}

// Delete removes a single session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *Store) deleteLocked(id string) error {
	sess, ok := s.store.Get(id)
	if !ok {
		return nil
	}
	if err := s.store.Remove(id); err != nil {
		return err
	}
	ids := s.sessionIDsByUserID[sess.UserID]
	for i, sid := range ids {
		if sid == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	s.sessionIDsByUserID[sess.UserID] = ids
	return nil
}

// DeleteAllForUser removes every session belonging to userID (e.g. a
// password change invalidating all existing logins).
func (s *Store) DeleteAllForUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append([]string(nil), s.sessionIDsByUserID[userID]...)
	for _, id := range ids {
		if err := s.deleteLocked(id); err != nil {
			return apperr.Wrap(apperr.IO, fmt.Sprintf("delete session %q", id), err)
		}
	}
	return nil
}

// Close releases the underlying log file handle.
func (s *Store) Close() error { return s.store.Close() }

type Codec struct{}

var _ storelog.Codec[Session] = Codec{}

func (Codec) ValueType() string { return "session" }

func (Codec) Marshal(s Session) (map[string]any, error) {
	return map[string]any{
		"id":           s.ID,
		"userId":       s.UserID,
		"creationDate": s.CreationDate,
	}, nil
}

func (Codec) Unmarshal(fields map[string]any) (Session, error) {
	id, ok := fields["id"].(string)
	if !ok {
		return Session{}, apperr.New(apperr.RecordShape, "session missing id")
	}
	userID, ok := fields["userId"].(string)
	if !ok {
		return Session{}, apperr.New(apperr.RecordShape, "session missing userId")
	}
	creationDate, ok := fields["creationDate"].(float64)
	if !ok {
		return Session{}, apperr.New(apperr.RecordShape, "session missing creationDate")
	}
	for k := range fields {
		switch k {
		case "id", "userId", "creationDate":
		default:
			return Session{}, apperr.New(apperr.RecordShape, fmt.Sprintf("unknown session field %q", k))
		}
	}
	return Session{ID: id, UserID: userID, CreationDate: int64(creationDate)}, nil
}

// Diff/Apply are never exercised: sessions are create/delete only, no
// partial updates exist in this engine.
func (Codec) Diff(old, new Session) (map[string]any, error) {
	return nil, apperr.New(apperr.Invariant, "sessions do not support update")
}

func (Codec) Apply(base Session, fields map[string]any) (Session, error) {
	return Session{}, apperr.New(apperr.Invariant, "sessions do not support update")
}
