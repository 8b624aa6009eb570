package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/errcode"
	"github.com/xxxsen/medrag/internal/pkg/response"
	"github.com/xxxsen/medrag/internal/rag"
	"github.com/xxxsen/medrag/internal/service"
)

const (
	defaultDebugK = 5
	maxDebugK     = 50
)

type AssistantHandler struct {
	svc *service.AssistantService
}

func NewAssistantHandler(svc *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{svc: svc}
}

type textRequest struct {
	Text string `json:"text"`
}

type contextRequest struct {
	Question string `json:"question"`
	Intent   string `json:"intent"`
}

type outputRequest struct {
	Text      string `json:"text"`
	IsMedical bool   `json:"is_medical"`
}

type prepareRequest struct {
	Question string `json:"question"`
}

func (h *AssistantHandler) ValidateInput(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	response.Success(c, h.svc.ValidateInput(c.Request.Context(), req.Text))
}

func (h *AssistantHandler) DetectIntent(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	response.Success(c, h.svc.DetectIntent(c.Request.Context(), req.Text))
}

func (h *AssistantHandler) BuildContext(c *gin.Context) {
	var req contextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	out := h.svc.BuildContext(c.Request.Context(), rag.ContextRequest{
		Question: req.Question,
		Intent:   model.ParseIntent(req.Intent),
	})
	response.Success(c, gin.H{"context": out})
}

func (h *AssistantHandler) ValidateOutput(c *gin.Context) {
	var req outputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	response.Success(c, gin.H{"text": h.svc.ValidateOutput(c.Request.Context(), req.Text, req.IsMedical)})
}

func (h *AssistantHandler) Prepare(c *gin.Context) {
	var req prepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	response.Success(c, h.svc.Prepare(c.Request.Context(), req.Question))
}

func (h *AssistantHandler) DebugRetrieval(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "q is required")
		return
	}
	k := defaultDebugK
	if raw := c.Query("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxDebugK {
			response.Error(c, errcode.ErrInvalid, "invalid k")
			return
		}
		k = parsed
	}
	report, err := h.svc.DebugRetrieval(c.Request.Context(), query, k)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *AssistantHandler) Stats(c *gin.Context) {
	response.Success(c, gin.H{"document_count": h.svc.DocumentCount(c.Request.Context())})
}
