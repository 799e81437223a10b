// File: internal/server/handlers.go

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/agent"
	"github.com/innova-space-edu/mira-agentd/internal/browser"
	"github.com/innova-space-edu/mira-agentd/internal/session"
)

const disabledHint = "El control de navegador está deshabilitado en este servidor. Quita browser.disabled de la configuración para habilitarlo."

type chatRequest struct {
	SessionID string `json:"sessionId"`
	UserText  string `json:"userText"`
}

type agentPayload struct {
	State string        `json:"state"`
	Plan  *session.Plan `json:"plan"`
	Logs  []string      `json:"logs"`
}

type chatResponse struct {
	AssistantText string           `json:"assistantText"`
	Agent         agentPayload     `json:"agent"`
	Actions       []session.Action `json:"actions"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.UserText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Falta sessionId o userText"})
		return
	}

	result, err := s.chat.RunTurn(c.Request.Context(), req.SessionID, req.UserText)
	if err != nil {
		s.logger.Error("Chat turn failed.", zap.String("session_id", req.SessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error en el servidor",
			"agent": agentPayload{State: string(agent.StateRecovering), Logs: []string{}},
		})
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		AssistantText: result.FinalText,
		Agent: agentPayload{
			State: string(result.State),
			Plan:  result.Plan,
			Logs:  result.Logs,
		},
		Actions: result.Actions,
	})
}

// browserFailure renders an expected browser failure as a 200 ok:false
// payload so the frontend can degrade instead of treating it as an outage.
func (s *Server) browserFailure(c *gin.Context, sessionID string, err error) {
	s.logger.Warn("Browser operation failed.", zap.String("session_id", sessionID), zap.Error(err))
	payload := gin.H{"ok": false, "error": err.Error()}
	if errors.Is(err, browser.ErrDisabled) {
		payload["hint"] = disabledHint
	}
	c.JSON(http.StatusOK, payload)
}

type browserSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleBrowserStart(c *gin.Context) {
	var req browserSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Falta sessionId"})
		return
	}

	viewport, shot, err := s.browser.Start(c.Request.Context(), req.SessionID)
	if err != nil {
		s.browserFailure(c, req.SessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "viewport": viewport, "screenshotBase64": shot})
}

func (s *Server) handleBrowserScreenshot(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Falta sessionId"})
		return
	}

	shot, err := s.browser.Screenshot(c.Request.Context(), sessionID)
	if err != nil {
		s.browserFailure(c, sessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "screenshotBase64": shot})
}

type browserGotoRequest struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func (s *Server) handleBrowserGoto(c *gin.Context) {
	var req browserGotoRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Falta sessionId o url"})
		return
	}

	shot, err := s.browser.Goto(c.Request.Context(), req.SessionID, req.URL)
	if err != nil {
		s.browserFailure(c, req.SessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "screenshotBase64": shot})
}

type browserClickRequest struct {
	SessionID string   `json:"sessionId"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
}

func (s *Server) handleBrowserClick(c *gin.Context) {
	var req browserClickRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.X == nil || req.Y == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Falta sessionId, x o y"})
		return
	}

	shot, err := s.browser.Click(c.Request.Context(), req.SessionID, *req.X, *req.Y)
	if err != nil {
		s.browserFailure(c, req.SessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "screenshotBase64": shot})
}

type browserTypeRequest struct {
	SessionID string `json:"sessionId"`
	// Text is a pointer so an empty string stays a valid (no-op) request;
	// only an absent field is rejected.
	Text *string `json:"text"`
}

func (s *Server) handleBrowserType(c *gin.Context) {
	var req browserTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.Text == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Falta sessionId o text"})
		return
	}

	shot, err := s.browser.Type(c.Request.Context(), req.SessionID, *req.Text)
	if err != nil {
		s.browserFailure(c, req.SessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "screenshotBase64": shot})
}

type browserKeyRequest struct {
	SessionID string `json:"sessionId"`
	Key       string `json:"key"`
}

func (s *Server) handleBrowserKey(c *gin.Context) {
	var req browserKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Falta sessionId o key"})
		return
	}

	shot, err := s.browser.Key(c.Request.Context(), req.SessionID, req.Key)
	if err != nil {
		s.browserFailure(c, req.SessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "screenshotBase64": shot})
}

func (s *Server) handleBrowserStop(c *gin.Context) {
	var req browserSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Falta sessionId"})
		return
	}

	// Stop never fails; a dead or absent browser still reports ok.
	s.browser.Stop(c.Request.Context(), req.SessionID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
