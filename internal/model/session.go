package model

import "time"

// Session is the persisted record of one PDF question-answering session.
// PDFProcessed is true exactly when the session's vector index has been written.
type Session struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	SessionID    string    `gorm:"size:64;not null;uniqueIndex" json:"session_id"`
	PDFProcessed bool      `gorm:"not null;default:false" json:"pdf_processed"`
	PDFName      string    `gorm:"size:512" json:"pdf_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
