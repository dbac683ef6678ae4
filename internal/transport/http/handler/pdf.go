package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"askpdf/internal/app"
	"askpdf/internal/transport/http/response"
)

type IngestService interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
}

type QueryService interface {
	Ask(ctx context.Context, input app.AskInput) (*app.AskResult, error)
}

type PDFHandler struct {
	ingestService IngestService
	queryService  QueryService
	maxUpload     int64
}

type AskQuestionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Question  string `json:"question" binding:"required"`
}

type AskQuestionResponse struct {
	Answer string `json:"answer"`
}

func NewPDFHandler(ingestService IngestService, queryService QueryService, maxUploadMB int) *PDFHandler {
	return &PDFHandler{
		ingestService: ingestService,
		queryService:  queryService,
		maxUpload:     int64(maxUploadMB) << 20,
	}
}

// Upload accepts a multipart form with "file" (PDF) for the session named by
// the session_id query parameter and builds the session's index from it.
func (h *PDFHandler) Upload(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, "session_id is required")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "missing file")
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		response.Error(c, http.StatusBadRequest, "File must be a PDF")
		return
	}
	if h.maxUpload > 0 && file.Size > h.maxUpload {
		response.Error(c, http.StatusBadRequest, fmt.Sprintf("file too large (max %dMB)", h.maxUpload>>20))
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer f.Close()

	_, err = h.ingestService.Ingest(c.Request.Context(), app.IngestInput{
		SessionID: sessionID,
		FileName:  filepath.Base(file.Filename),
		Content:   f,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, "Session not found")
		case errors.Is(err, app.ErrNoExtractableText):
			response.Error(c, http.StatusUnprocessableEntity, "PDF contains no extractable text")
		case errors.Is(err, app.ErrSessionBusy):
			response.Error(c, http.StatusConflict, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "Error processing PDF: "+err.Error())
		}
		return
	}

	response.Message(c, fmt.Sprintf("PDF uploaded and processed for session %s", sessionID))
}

func (h *PDFHandler) Ask(c *gin.Context) {
	var req AskQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.queryService.Ask(c.Request.Context(), app.AskInput{
		SessionID: req.SessionID,
		Question:  req.Question,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "question must not be empty")
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, "Session not found")
		case errors.Is(err, app.ErrNoDocument):
			response.Error(c, http.StatusNotFound, "No PDF processed for this session")
		case errors.Is(err, app.ErrIndexMissing):
			response.Error(c, http.StatusNotFound, "Index not found for this session")
		default:
			response.Error(c, http.StatusInternalServerError, "Error answering question: "+err.Error())
		}
		return
	}

	response.OK(c, AskQuestionResponse{Answer: result.Answer})
}
