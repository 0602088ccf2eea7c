package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	notificationdomain "github.com/subdesklabs/subdesk/internal/notification/domain"
	"go.uber.org/zap"
)

type queueDispatchRequest struct {
	NotificationID string `json:"notification_id" binding:"required"`
}

// QueueDispatch is the callback the push queue invokes when a scheduled
// notification is due. Retries with the same queue message id collapse into
// the first delivery via the idempotency guard; dispatch itself is also a
// no-op for anything no longer pending, so the two layers back each other up.
func (s *Server) QueueDispatch(c *gin.Context) {
	var req queueDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notificationID, err := snowflake.ParseString(req.NotificationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	retryCount, _ := strconv.Atoi(c.GetHeader("X-Retry-Count"))
	queueMessageID := c.GetHeader("X-Queue-Message-Id")

	callbackKey := queueMessageID
	if callbackKey == "" {
		callbackKey = req.NotificationID
	}
	reserved, err := s.guard.ReserveCallback(c.Request.Context(), callbackKey)
	if err != nil {
		respondError(c, err)
		return
	}
	if !reserved {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	err = s.notificationSvc.Dispatch(c.Request.Context(), notificationID, notificationdomain.DispatchMeta{
		RetryCount:     retryCount,
		QueueMessageID: queueMessageID,
	})
	if err != nil {
		// Dispatch only propagates transient failures (send problems are
		// absorbed into the row's failed state). Reopen the reservation so the
		// queue's next retry gets a real attempt instead of a duplicate ack.
		if releaseErr := s.guard.ReleaseCallback(c.Request.Context(), callbackKey); releaseErr != nil {
			s.log.Warn("callback reservation release failed",
				zap.String("callback_key", callbackKey),
				zap.Error(releaseErr))
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListReviewQueue(c *gin.Context) {
	orders, err := s.orderRepo.ListAwaitingReview(c.Request.Context(), s.db)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) ApproveOrder(c *gin.Context) {
	orderID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	adminID := c.GetHeader(adminIDHeader)

	reserved, err := s.guard.ReserveAdminAction(c.Request.Context(), "approve", orderID.String(), adminID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !reserved {
		c.JSON(http.StatusConflict, gin.H{"error": "action already in flight"})
		return
	}

	result, err := s.orderSvc.Approve(c.Request.Context(), orderID, adminID)
	if err != nil {
		s.log.Warn("approve failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":        result.Order,
		"subscription": result.Subscription,
	})
}

type dismissRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) DismissOrder(c *gin.Context) {
	orderID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	var req dismissRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID := c.GetHeader(adminIDHeader)

	reserved, err := s.guard.ReserveAdminAction(c.Request.Context(), "dismiss", orderID.String(), adminID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !reserved {
		c.JSON(http.StatusConflict, gin.H{"error": "action already in flight"})
		return
	}

	order, err := s.orderSvc.Dismiss(c.Request.Context(), orderID, adminID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
