package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"askpdf/internal/chunker"
	"askpdf/internal/lock"
	"askpdf/internal/model"
	"askpdf/internal/vectorindex"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	// vanishOnMark drops the row right before MarkProcessed, as a
	// concurrent delete would.
	vanishOnMark bool
	err          error
}

func newFakeSessionStore(ids ...string) *fakeSessionStore {
	s := &fakeSessionStore{sessions: map[string]*model.Session{}}
	for _, id := range ids {
		s.sessions[id] = &model.Session{SessionID: id}
	}
	return s
}

func (s *fakeSessionStore) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *session
	s.sessions[session.SessionID] = &cp
	return nil
}

func (s *fakeSessionStore) GetBySessionID(_ context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s *fakeSessionStore) MarkProcessed(_ context.Context, id, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vanishOnMark {
		delete(s.sessions, id)
	}
	session, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	session.PDFProcessed = true
	session.PDFName = name
	return true, nil
}

func (s *fakeSessionStore) DeleteBySessionID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

func (s *fakeSessionStore) ListSessionIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// letterEmbedder maps text to its letter histogram plus a constant
// component, so texts sharing words land close together.
type letterEmbedder struct {
	mu        sync.Mutex
	calls     int
	failAfter int
	queryErr  error
}

func (e *letterEmbedder) vector(text string) []float32 {
	vec := make([]float32, 27)
	vec[26] = 0.1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec
}

func (e *letterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failAfter > 0 && e.calls >= e.failAfter {
		return nil, errors.New("embedding endpoint unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *letterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return e.vector(text), nil
}

func (e *letterEmbedder) Model() string { return "letters" }

type fakeGenerator struct {
	prompt string
	answer string
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	busy     bool
	err      error
	acquired int
}

func (l *fakeLocker) Acquire(_ context.Context, id string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.busy || l.held[id] {
		return nil, lock.ErrLockTimeout
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[id] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, id)
	}, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []model.IndexCleanupJob
}

func (p *fakePublisher) PublishCleanup(_ context.Context, job model.IndexCleanupJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

// failingRemoveStore wraps a real store but refuses to remove indexes.
type failingRemoveStore struct {
	*vectorindex.Store
}

func (failingRemoveStore) Remove(string) (bool, error) {
	return false, errors.New("permission denied")
}

type harness struct {
	sessions  *fakeSessionStore
	indexes   *vectorindex.Store
	embedder  *letterEmbedder
	generator *fakeGenerator
	locker    *fakeLocker
	publisher *fakePublisher

	sessionSvc *SessionService
	ingestSvc  *IngestService
	querySvc   *QueryService
}

func newHarness(t *testing.T, chunkSize, overlap, batchSize int) *harness {
	t.Helper()
	splitter, err := chunker.New(chunkSize, overlap)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	h := &harness{
		sessions:  newFakeSessionStore(),
		indexes:   vectorindex.NewStore(t.TempDir(), "index_"),
		embedder:  &letterEmbedder{},
		generator: &fakeGenerator{answer: "Lastonia"},
		locker:    &fakeLocker{},
		publisher: &fakePublisher{},
	}
	logger := discardLogger()
	h.sessionSvc = NewSessionService(h.sessions, h.indexes, h.locker, h.publisher, logger)
	h.ingestSvc = NewIngestService(h.sessions, h.indexes, h.embedder, h.locker, splitter, batchSize, logger)
	h.querySvc = NewQueryService(h.sessions, h.indexes, h.embedder, h.generator, 4, logger)
	return h
}
