package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/service"
)

// ParticipantHeader 通过 HTTP 提交笔画时标识作者
const ParticipantHeader = "X-Participant-ID"

// StrokeHandler 暴露笔画的读写、撤销与清空
type StrokeHandler struct {
	collab *service.CollaborationService
}

// NewStrokeHandler 创建 StrokeHandler 实例
func NewStrokeHandler(collab *service.CollaborationService) *StrokeHandler {
	return &StrokeHandler{collab: collab}
}

// ListStrokesResponse 按 order_index 升序的存活笔画
type ListStrokesResponse struct {
	SessionID string          `json:"session_id"`
	Strokes   []domain.Stroke `json:"strokes"`
}

// ListStrokes 处理 GET /api/sessions/:id/strokes
func (h *StrokeHandler) ListStrokes(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.collab.EnsureSession(c.Request.Context(), sessionID); err != nil {
		HandleServiceError(c, err)
		return
	}
	strokes, err := h.collab.ListStrokes(c.Request.Context(), sessionID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	SuccessResponse(c, http.StatusOK, ListStrokesResponse{SessionID: sessionID, Strokes: strokes})
}

// SubmitStroke 处理 POST /api/sessions/:id/strokes
func (h *StrokeHandler) SubmitStroke(c *gin.Context) {
	sessionID := c.Param("id")
	author := strings.TrimSpace(c.GetHeader(ParticipantHeader))
	if author == "" {
		author = c.GetString(middleware.ContextKeySubject)
	}
	if author == "" {
		ErrorResponse(c, http.StatusBadRequest, ParticipantHeader+" header is required")
		return
	}
	var draft domain.StrokeDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid stroke body")
		return
	}
	stroke, err := h.collab.SubmitStroke(c.Request.Context(), sessionID, author, draft)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, stroke)
}

// UndoLast 处理 POST /api/sessions/:id/undo
func (h *StrokeHandler) UndoLast(c *gin.Context) {
	stroke, err := h.collab.UndoLast(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, stroke)
}

// ClearSession 处理 DELETE /api/sessions/:id/strokes
func (h *StrokeHandler) ClearSession(c *gin.Context) {
	removed, err := h.collab.ClearSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"removed": removed})
}

// ListPresence 处理 GET /api/sessions/:id/presence
func (h *StrokeHandler) ListPresence(c *gin.Context) {
	participants, err := h.collab.Participants(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if participants == nil {
		participants = []domain.PresenceRecord{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"participants": participants})
}
