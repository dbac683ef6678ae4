package app

import (
	"context"

	"askpdf/internal/model"
	"askpdf/internal/vectorindex"
)

type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*model.Session, error)
	MarkProcessed(ctx context.Context, sessionID, pdfName string) (bool, error)
	DeleteBySessionID(ctx context.Context, sessionID string) (bool, error)
	ListSessionIDs(ctx context.Context) ([]string, error)
}

type IndexStore interface {
	Replace(ctx context.Context, sessionID, model string, entries []vectorindex.Entry) error
	Exists(sessionID string) (bool, error)
	Search(ctx context.Context, sessionID string, query []float32, k int) ([]vectorindex.Hit, error)
	Remove(sessionID string) (bool, error)
	ListSessionIDs() ([]string, error)
}

// Embedder maps texts to vectors. Documents and queries may be embedded with
// different task hints but always land in the same vector space.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Locker serializes writers of one session. The returned func releases the
// lock and is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (func(), error)
}

type CleanupPublisher interface {
	PublishCleanup(ctx context.Context, job model.IndexCleanupJob) error
}
