package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"askpdf/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

// GetBySessionID returns nil, nil when no session has the given identifier.
func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// MarkProcessed flags the session as having an index and records the file
// name. It reports false when the session row no longer exists.
func (r *SessionRepository) MarkProcessed(ctx context.Context, sessionID, pdfName string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"pdf_processed": true,
			"pdf_name":      pdfName,
		})
	if result.Error != nil {
		return false, fmt.Errorf("mark session processed failed: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	// MySQL reports zero affected rows when values are unchanged, so a
	// re-upload of the same file name needs an existence check.
	session, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session != nil, nil
}

// DeleteBySessionID reports whether a row was removed.
func (r *SessionRepository) DeleteBySessionID(ctx context.Context, sessionID string) (bool, error) {
	result := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.Session{})
	if result.Error != nil {
		return false, fmt.Errorf("delete session failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *SessionRepository) ListSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Order("created_at DESC").Pluck("session_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list session ids failed: %w", err)
	}
	return ids, nil
}
