package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/StudyRoom/internal/adapters/auth"
	"github.com/dkeye/StudyRoom/internal/adapters/signal"
	"github.com/dkeye/StudyRoom/internal/domain"
	"github.com/dkeye/StudyRoom/internal/metrics"
)

const sessionTokenKey = "token"

// Admission resolves the caller's identity before any coordinator state is
// touched. A request that fails here never reaches the websocket upgrade.
type Admission struct {
	Auth    auth.Authenticator
	Limiter *auth.RateLimiter
	Metrics *metrics.Metrics
}

// credential looks at the token query param, then the bearer header, then
// the login session.
func credential(c *gin.Context) string {
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if tok, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
		return tok
	}
	return ""
}

func (a *Admission) identify(c *gin.Context) (domain.Identity, error) {
	if a.Auth == nil {
		return domain.Identity{}, auth.ErrNoCredential
	}
	return a.Auth.Verify(c.Request.Context(), credential(c))
}

// Connect gates the signaling endpoint: throttled per client IP, then
// authenticated.
func (a *Admission) Connect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Limiter.Allow(c.ClientIP()) {
			a.Metrics.Admission("throttled")
			log.Warn().Str("module", "adapters.http").Str("ip", c.ClientIP()).Msg("connect throttled")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
			return
		}
		id, err := a.identify(c)
		if err != nil {
			a.Metrics.Admission("rejected")
			a.reject(c, err)
			return
		}
		a.Metrics.Admission("admitted")
		c.Set(signal.IdentityKey, id)
		c.Next()
	}
}

// Require authenticates plain API calls.
func (a *Admission) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.identify(c)
		if err != nil {
			a.reject(c, err)
			return
		}
		c.Set(signal.IdentityKey, id)
		c.Next()
	}
}

func (a *Admission) reject(c *gin.Context, err error) {
	log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("unauthenticated")
	msg := "invalid credential"
	if errors.Is(err, auth.ErrNoCredential) {
		msg = "missing credential"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

func identityOf(c *gin.Context) domain.Identity {
	id, _ := c.MustGet(signal.IdentityKey).(domain.Identity)
	return id
}
