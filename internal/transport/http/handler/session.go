package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"askpdf/internal/app"
	"askpdf/internal/model"
	"askpdf/internal/transport/http/response"
)

type SessionService interface {
	Create(ctx context.Context) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

type SessionHandler struct {
	sessionService SessionService
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

func NewSessionHandler(sessionService SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) Create(c *gin.Context) {
	session, err := h.sessionService.Create(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "create session failed")
		return
	}
	response.OK(c, CreateSessionResponse{SessionID: session.SessionID})
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessionService.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeSessionError(c, err, "get session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.sessionService.Delete(c.Request.Context(), sessionID); err != nil {
		writeSessionError(c, err, "delete session failed")
		return
	}
	response.Message(c, fmt.Sprintf("Session %s deleted", sessionID))
}

func writeSessionError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound), errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusNotFound, "Session not found")
	case errors.Is(err, app.ErrSessionBusy):
		response.Error(c, http.StatusConflict, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, fallback)
	}
}
