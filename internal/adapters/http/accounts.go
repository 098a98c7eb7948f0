package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/StudyRoom/internal/adapters/auth"
	"github.com/dkeye/StudyRoom/internal/domain"
	"github.com/dkeye/StudyRoom/internal/store"
)

type accountHandlers struct {
	store   *store.SQLiteStore
	tokens  *auth.JWT
	ttl     time.Duration
	limiter *auth.RateLimiter
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6"`
	Nickname string `json:"nickname"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

func identityFor(u store.User) domain.Identity {
	return domain.Identity{UserID: domain.UserID(u.IDString()), DisplayName: u.Nickname}
}

// POST /api/auth/register
func (h *accountHandlers) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Nickname == "" {
		req.Nickname = req.Username
	}
	nick, err := domain.NormalizeDisplayName(req.Nickname)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.store.CreateUser(c.Request.Context(), req.Username, req.Password, nick)
	switch {
	case errors.Is(err, store.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	log.Info().Str("module", "adapters.http").Int64("user", u.ID).Msg("registered")
	h.startSession(c, http.StatusCreated, u)
}

// POST /api/auth/login
func (h *accountHandlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !h.limiter.Allow(req.Username) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}

	u, err := h.store.VerifyUser(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, store.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.startSession(c, http.StatusOK, u)
}

// POST /api/auth/logout
func (h *accountHandlers) logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	c.Status(http.StatusNoContent)
}

func (h *accountHandlers) startSession(c *gin.Context, status int, u store.User) {
	id := identityFor(u)
	tok, err := h.tokens.Sign(id, h.ttl)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("sign token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessionTokenKey, tok)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	c.JSON(status, sessionResponse{Token: tok, User: id})
}
