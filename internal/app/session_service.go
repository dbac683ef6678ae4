package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"askpdf/internal/lock"
	"askpdf/internal/model"
)

type SessionService struct {
	sessions  SessionStore
	indexes   IndexStore
	locker    Locker
	publisher CleanupPublisher
	logger    *slog.Logger
}

func NewSessionService(
	sessions SessionStore,
	indexes IndexStore,
	locker Locker,
	publisher CleanupPublisher,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		indexes:   indexes,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
	}
}

// Create registers a new session with no document attached.
func (s *SessionService) Create(ctx context.Context) (*model.Session, error) {
	session := &model.Session{
		SessionID:    uuid.NewString(),
		PDFProcessed: false,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session_id", session.SessionID)
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session record and then its index. Only the record
// decides success; index removal problems are logged and handed to the
// cleanup worker.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidInput
	}

	release, err := s.locker.Acquire(ctx, sessionID)
	switch {
	case errors.Is(err, lock.ErrLockTimeout):
		return ErrSessionBusy
	case err != nil:
		// the record stays authoritative when the lock backend is unreachable
		s.logger.Warn("session lock unavailable, deleting without it", "session_id", sessionID, "error", err)
	default:
		defer release()
	}

	deleted, err := s.sessions.DeleteBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}

	removed, err := s.indexes.Remove(sessionID)
	if err != nil {
		s.logger.Warn("remove index failed, scheduling cleanup", "session_id", sessionID, "error", err)
		s.scheduleCleanup(ctx, sessionID, "delete")
		return nil
	}
	s.logger.Info("session deleted", "session_id", sessionID, "index_removed", removed)
	return nil
}

// SweepOrphanIndexes schedules removal of every index whose session record
// no longer exists and returns how many were scheduled.
func (s *SessionService) SweepOrphanIndexes(ctx context.Context) (int, error) {
	indexed, err := s.indexes.ListSessionIDs()
	if err != nil {
		return 0, err
	}
	if len(indexed) == 0 {
		return 0, nil
	}
	live, err := s.sessions.ListSessionIDs(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(live))
	for _, id := range live {
		known[id] = struct{}{}
	}

	scheduled := 0
	for _, id := range indexed {
		if _, ok := known[id]; ok {
			continue
		}
		s.scheduleCleanup(ctx, id, "orphan")
		scheduled++
	}
	if scheduled > 0 {
		s.logger.Info("orphan indexes scheduled for cleanup", "count", scheduled)
	}
	return scheduled, nil
}

func (s *SessionService) scheduleCleanup(ctx context.Context, sessionID, reason string) {
	if s.publisher == nil {
		return
	}
	job := model.IndexCleanupJob{
		SessionID:   sessionID,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishCleanup(ctx, job); err != nil {
		s.logger.Error("publish index cleanup failed", "session_id", sessionID, "error", err)
	}
}
