package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/StudyRoom/internal/store"
)

type focusHandlers struct {
	store *store.SQLiteStore
	now   func() time.Time
}

type focusRequest struct {
	TaskName     string `json:"task_name" binding:"max=128"`
	DurationMins int    `json:"duration_mins" binding:"required,min=1,max=1440"`
}

func (h *focusHandlers) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// userID maps the authenticated identity back to the account row.
func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(string(identityOf(c).UserID), 10, 64)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no account for this identity"})
		return 0, false
	}
	return id, true
}

// GET /api/focus/today
func (h *focusHandlers) today(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	sum, err := h.store.DayAggregate(c.Request.Context(), uid, h.clock())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("focus today")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GET /api/focus/month/:month (YYYY-MM)
func (h *focusHandlers) month(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	month := c.Param("month")
	if _, err := time.Parse("2006-01", month); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
		return
	}
	records, err := h.store.RecordsByMonth(c.Request.Context(), uid, month)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("focus month")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": month, "records": records})
}

// POST /api/focus
func (h *focusHandlers) add(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req focusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rec, err := h.store.AddFocusRecord(c.Request.Context(), uid, req.TaskName, req.DurationMins, h.clock())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("focus add")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, rec)
}
