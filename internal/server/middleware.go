package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const adminIDHeader = "X-Admin-Id"

// queueTokenAuth authenticates callbacks from the push queue with the shared
// bearer token.
func (s *Server) queueTokenAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if s.cfg.QueueToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.QueueToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid queue token"})
			return
		}
		c.Next()
	}
}

// adminAuth requires a configured admin id on every /admin request.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID := c.GetHeader(adminIDHeader)
		if adminID == "" || !s.cfg.IsAdmin(adminID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
