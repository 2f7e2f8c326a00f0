package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/logging"
)

type Handler struct {
	service ports.BotService
	logger  logging.Logger
}

func NewHandler(service ports.BotService, logger logging.Logger) *Handler {
	return &Handler{service: service, logger: logger.With(logging.F("component", "http"))}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/bot/join", h.joinBot)
	r.POST("/bot/leave", h.leaveBot)
	r.GET("/bot/:botId", h.getStatus)
	r.GET("/bot/:botId/snapshot", h.getSnapshot)
	r.GET("/bots", h.listBots)
	r.GET("/health", h.health)
}

type joinRequest struct {
	MeetingURL  string `json:"meetingUrl"`
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
}

type leaveRequest struct {
	BotID string `json:"botId"`
}

type botResponse struct {
	BotID     string          `json:"botId"`
	SessionID string          `json:"sessionId"`
	State     domain.BotState `json:"state"`
}

func toBotResponse(s *domain.BotSession) botResponse {
	return botResponse{BotID: s.ID, SessionID: s.SessionID, State: s.State}
}

func (h *Handler) joinBot(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, err)
		return
	}

	session, err := h.service.Join(c.Request.Context(), domain.JoinRequest{
		MeetingURL:  req.MeetingURL,
		SessionID:   req.SessionID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.respondError(c, statusFor(err), err)
		return
	}

	c.JSON(http.StatusAccepted, toBotResponse(session))
}

func (h *Handler) leaveBot(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.BotID == "" {
		h.respondError(c, http.StatusBadRequest, errors.New("botId is required"))
		return
	}

	session, err := h.service.Leave(c.Request.Context(), req.BotID)
	if err != nil {
		h.respondError(c, statusFor(err), err)
		return
	}

	c.JSON(http.StatusOK, toBotResponse(session))
}

func (h *Handler) getStatus(c *gin.Context) {
	session, err := h.service.Status(c.Request.Context(), c.Param("botId"))
	if err != nil {
		h.respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) getSnapshot(c *gin.Context) {
	png, err := h.service.Snapshot(c.Request.Context(), c.Param("botId"))
	if err != nil {
		h.respondError(c, statusFor(err), err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) listBots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bots": h.service.List(c.Request.Context())})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", logging.F("path", c.FullPath()), logging.Err(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
