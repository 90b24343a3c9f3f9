package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/middleware"
	"github.com/yourusername/billflow/notify"
)

// NotificationHandler serves the caller's in-app inbox.
type NotificationHandler struct {
	inbox *notify.Inbox
	clock func() time.Time
	log   logrus.FieldLogger
}

func NewNotificationHandler(inbox *notify.Inbox, clock func() time.Time, log logrus.FieldLogger) *NotificationHandler {
	if clock == nil {
		clock = time.Now
	}
	return &NotificationHandler{inbox: inbox, clock: clock, log: log}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	unread := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := h.inbox.List(c.Request.Context(), userID, unread, limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "count": len(items)})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	n, err := h.inbox.MarkRead(c.Request.Context(), userID, id, h.clock())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
