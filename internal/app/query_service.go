package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"askpdf/internal/vectorindex"
)

const defaultTopK = 4

const stuffPromptTemplate = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n" +
	"%CONTEXT%\n\nQuestion: %QUESTION%\nHelpful Answer:"

type QueryService struct {
	sessions  SessionStore
	indexes   IndexStore
	embedder  Embedder
	generator Generator
	topK      int
	logger    *slog.Logger
}

func NewQueryService(
	sessions SessionStore,
	indexes IndexStore,
	embedder Embedder,
	generator Generator,
	topK int,
	logger *slog.Logger,
) *QueryService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &QueryService{
		sessions:  sessions,
		indexes:   indexes,
		embedder:  embedder,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

type AskInput struct {
	SessionID string
	Question  string
}

type AskResult struct {
	Answer  string            `json:"answer"`
	Sources []vectorindex.Hit `json:"sources,omitempty"`
}

// Ask answers the question from the top-k chunks of the session's index.
// The generated answer is returned as is.
func (s *QueryService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	question := strings.TrimSpace(input.Question)
	if sessionID == "" || question == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, answeringFailed(err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.PDFProcessed {
		return nil, ErrNoDocument
	}

	exists, err := s.indexes.Exists(sessionID)
	if err != nil {
		return nil, answeringFailed(err)
	}
	if !exists {
		s.logger.Warn("processed session has no index", "session_id", sessionID)
		return nil, ErrIndexMissing
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, answeringFailed(err)
	}

	hits, err := s.indexes.Search(ctx, sessionID, queryVec, s.topK)
	if err != nil {
		if errors.Is(err, vectorindex.ErrIndexMissing) {
			s.logger.Warn("processed session has no index", "session_id", sessionID)
			return nil, ErrIndexMissing
		}
		return nil, answeringFailed(err)
	}

	answer, err := s.generator.Generate(ctx, buildStuffPrompt(hits, question))
	if err != nil {
		return nil, answeringFailed(err)
	}

	s.logger.Info("question answered", "session_id", sessionID, "chunks", len(hits))
	return &AskResult{Answer: answer, Sources: hits}, nil
}

// buildStuffPrompt places every retrieved chunk into a single prompt,
// separated by blank lines, followed by the question.
func buildStuffPrompt(hits []vectorindex.Hit, question string) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.NewReplacer(
		"%CONTEXT%", strings.Join(texts, "\n\n"),
		"%QUESTION%", question,
	).Replace(stuffPromptTemplate)
}
