package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(s *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: s}
}

// ListNotifications GET /notifications?unread_only=true
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	unreadOnly := c.Query("unread_only") == "true"

	notifications, err := h.svc.ListNotifications(c.Request.Context(), userID, limit, offset, unreadOnly)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// MarkAsRead POST /notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.MarkAsRead(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "уведомление прочитано"})
}

// CountUnread GET /notifications/unread-count
func (h *NotificationHandler) CountUnread(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	count, err := h.svc.CountUnread(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
