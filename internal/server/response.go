package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/subdesklabs/subdesk/internal/apperr"
	catalogdomain "github.com/subdesklabs/subdesk/internal/catalog/domain"
	discountdomain "github.com/subdesklabs/subdesk/internal/discount/domain"
	notificationdomain "github.com/subdesklabs/subdesk/internal/notification/domain"
	orderdomain "github.com/subdesklabs/subdesk/internal/order/domain"
)

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, notificationdomain.ErrNotificationNotFound),
		errors.Is(err, catalogdomain.ErrServiceNotFound),
		errors.Is(err, discountdomain.ErrDiscountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if kind, ok := apperr.KindOf(err); ok {
		switch kind {
		case apperr.KindValidation:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case apperr.KindAuthorization:
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case apperr.KindStateConflict:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case apperr.KindExternal:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
