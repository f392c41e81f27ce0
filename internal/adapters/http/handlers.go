package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type UserResponse struct {
	User domain.Identity `json:"user"`
}

type LoginResponse struct {
	User  domain.Identity `json:"user"`
	Token string          `json:"token"`
}

type OnlineResponse struct {
	Users []domain.Identity `json:"users"`
	Count int               `json:"count"`
}

type MessagesResponse struct {
	Messages []protocol.Message `json:"messages"`
}

type handlers struct {
	orch     *orch.Orchestrator
	auth     *auth.Service
	resolver core.IdentityResolver
}

func (h *handlers) register(c *gin.Context) {
	var req auth.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	acc, err := h.auth.Register(c.Request.Context(), req)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, domain.ErrAccountExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.internal(c, err)
		return
	}
	if err := startSession(c, acc.ID); err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusCreated, UserResponse{User: acc.Identity()})
}

func (h *handlers) login(c *gin.Context) {
	var req auth.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	acc, token, err := h.auth.Login(c.Request.Context(), req)
	if errors.Is(err, domain.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.internal(c, err)
		return
	}
	if err := startSession(c, acc.ID); err != nil {
		h.internal(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", string(acc.ID)).Msg("login")
	c.JSON(http.StatusOK, LoginResponse{User: acc.Identity(), Token: token})
}

func (h *handlers) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		h.internal(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) me(c *gin.Context) {
	identity, ok := h.identify(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, UserResponse{User: identity})
}

// requireUser admits requests that carry a login session or a bearer token,
// checked the same way as a websocket upgrade.
func (h *handlers) requireUser(c *gin.Context) {
	if _, ok := h.identify(c); !ok {
		return
	}
	c.Next()
}

func (h *handlers) identify(c *gin.Context) (domain.Identity, bool) {
	identity, err := h.resolver.Resolve(c.Request.Context(), signal.Credentials(c))
	if errors.Is(err, core.ErrUnauthorized) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return domain.Identity{}, false
	}
	if err != nil {
		h.internal(c, err)
		c.Abort()
		return domain.Identity{}, false
	}
	return identity, true
}

func (h *handlers) online(c *gin.Context) {
	users := h.orch.Online()
	c.JSON(http.StatusOK, OnlineResponse{Users: users, Count: len(users)})
}

func (h *handlers) messages(c *gin.Context) {
	limit := orch.MaxHistory
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = min(max(n, 1), orch.MaxHistory)
	}
	msgs, err := h.orch.RecentMessages(c.Request.Context(), limit)
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, MessagesResponse{Messages: protocol.NewHistory(msgs).Messages})
}

func (h *handlers) internal(c *gin.Context, err error) {
	log.Error().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func startSession(c *gin.Context, id domain.UserID) error {
	session := sessions.Default(c)
	session.Set(signal.SessionUserKey, string(id))
	return session.Save()
}
