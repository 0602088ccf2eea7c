package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Readiness reports whether the process can serve traffic: the database and
// redis both have to answer.
func (s *Server) Readiness(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "component": "database"})
		return
	}

	if err := s.redis.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "component": "redis"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
