package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragworkbench/internal/app"
	"ragworkbench/internal/ingest"
	"ragworkbench/internal/session"
	"ragworkbench/internal/transport/http/middleware"
	"ragworkbench/internal/transport/http/response"
	"ragworkbench/internal/view"
)

const defaultMaxUploadBytes = 10 << 20

type WorkbenchHandler struct {
	registry       *app.Registry
	history        *app.HistoryService
	historyLimit   int
	defaultLocale  string
	maxUploadBytes int64
}

type WorkbenchOptions struct {
	HistoryLimit   int
	DefaultLocale  string
	MaxUploadBytes int64
}

type PersonaRequest struct {
	Persona string `json:"persona" binding:"required"`
}

type QuestionRequest struct {
	Question string `json:"question"`
}

type CitationRequest struct {
	CitationID string `json:"citation_id" binding:"required"`
}

type AskResult struct {
	Turns          []session.Turn  `json:"turns"`
	Metrics        session.Metrics `json:"metrics"`
	CitationCursor string          `json:"citation_cursor,omitempty"`
}

func NewWorkbenchHandler(registry *app.Registry, history *app.HistoryService, opts WorkbenchOptions) *WorkbenchHandler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en"
	}
	return &WorkbenchHandler{
		registry:       registry,
		history:        history,
		historyLimit:   opts.HistoryLimit,
		defaultLocale:  opts.DefaultLocale,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

func (h *WorkbenchHandler) workbench(c *gin.Context) (*app.Workbench, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "unknown user")
		return nil, false
	}
	return h.registry.Get(userID), true
}

func (h *WorkbenchHandler) Upload(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeNoFile, ingest.ErrNoFile.Error())
		return
	}
	if fh.Size > h.maxUploadBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBadRequest,
			fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read uploaded file failed")
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read uploaded file failed")
		return
	}

	snap, err := wb.Upload(c.Request.Context(), &ingest.File{Name: fh.Filename, Data: data})
	if err != nil {
		var uploadErr *ingest.UploadError
		switch {
		case errors.Is(err, ingest.ErrNoFile):
			response.Error(c, http.StatusBadRequest, response.CodeNoFile, err.Error())
		case errors.Is(err, ingest.ErrSuperseded):
			response.ErrorWithData(c, http.StatusConflict, response.CodeBadRequest, "upload superseded by a newer upload", snap)
		case errors.Is(err, ingest.ErrTrackerClosed):
			response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "workbench is closed")
		case errors.As(err, &uploadErr) && uploadErr.Kind == ingest.KindRejected:
			response.ErrorWithData(c, http.StatusUnprocessableEntity, response.CodeUploadRejected, uploadErr.Message, snap)
		case errors.As(err, &uploadErr):
			response.ErrorWithData(c, http.StatusBadGateway, response.CodeUpstream, uploadErr.Message, snap)
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
		}
		return
	}
	response.OK(c, snap)
}

func (h *WorkbenchHandler) Ingestion(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}
	response.OK(c, wb.Ingestion())
}

func (h *WorkbenchHandler) SetPersona(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}
	var req PersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	persona, err := wb.SetPersona(req.Persona)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeUnknownPersona, err.Error())
		return
	}
	response.OK(c, gin.H{"persona": persona})
}

func (h *WorkbenchHandler) Ask(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	turns, err := wb.Ask(c.Request.Context(), req.Question)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotReady):
			response.Error(c, http.StatusConflict, response.CodeDocumentNotReady, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusBadGateway, response.CodeUpstream, "answer generation failed")
		}
		return
	}
	if turns == nil {
		turns = []session.Turn{}
	}
	state := wb.State()
	response.OK(c, AskResult{Turns: turns, Metrics: state.Metrics, CitationCursor: state.CitationCursor})
}

func (h *WorkbenchHandler) Turns(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}
	response.OK(c, wb.Turns())
}

func (h *WorkbenchHandler) SelectCitation(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}
	var req CitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	wb.SelectCitation(req.CitationID)
	response.OK(c, gin.H{"citation_cursor": req.CitationID})
}

func (h *WorkbenchHandler) ClearCitation(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}
	wb.ClearCitation()
	response.OK(c, gin.H{"citation_cursor": nil})
}

// State returns the raw workbench state and its rendered page. The locale
// comes from ?lang=, then Accept-Language, then the configured default.
func (h *WorkbenchHandler) State(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}
	state := wb.State()
	locale := view.MatchLocale(c.Query("lang"), c.GetHeader("Accept-Language"), h.defaultLocale)
	page := view.Render(view.Input{
		Ingestion: state.Ingestion,
		Persona:   state.Persona,
		Turns:     state.Turns,
		Cursor:    state.CitationCursor,
		Metrics:   state.Metrics,
	}, locale)
	response.OK(c, gin.H{"state": state, "view": page})
}

func (h *WorkbenchHandler) History(c *gin.Context) {
	wb, ok := h.workbench(c)
	if !ok {
		return
	}
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.history.GetHistory(c.Request.Context(), wb.UserID(), wb.SessionID(), limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrHistoryDisabled):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load history failed")
		}
		return
	}
	response.OK(c, gin.H{"session_id": wb.SessionID(), "turns": records})
}

// Reset drops the user's workbench; the next request starts a new session.
// The response names the session that ended, if there was one.
func (h *WorkbenchHandler) Reset(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "unknown user")
		return
	}
	ended := ""
	if wb, found := h.registry.Lookup(userID); found {
		ended = wb.SessionID()
	}
	h.registry.Drop(userID)
	response.OK(c, gin.H{"ended_session_id": ended})
}
