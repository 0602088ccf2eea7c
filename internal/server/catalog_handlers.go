package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	catalogdomain "github.com/subdesklabs/subdesk/internal/catalog/domain"
	"gorm.io/datatypes"
)

type createServiceRequest struct {
	Title        string   `json:"title" binding:"required"`
	Price        string   `json:"price" binding:"required"`
	Notes        string   `json:"notes"`
	NeededFields []string `json:"needed_fields"`
	DurationDays int      `json:"duration_days" binding:"required"`
}

func (s *Server) CreateService(c *gin.Context) {
	var req createServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc, err := s.catalogSvc.Create(c.Request.Context(), c.GetHeader(adminIDHeader), catalogdomain.Service{
		Title:        req.Title,
		Price:        req.Price,
		Notes:        req.Notes,
		NeededFields: datatypes.JSONSlice[string](req.NeededFields),
		DurationDays: req.DurationDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"service": svc})
}

type updateServiceRequest struct {
	Title        *string  `json:"title"`
	Price        *string  `json:"price"`
	Notes        *string  `json:"notes"`
	NeededFields []string `json:"needed_fields"`
	DurationDays *int     `json:"duration_days"`
}

func (s *Server) UpdateService(c *gin.Context) {
	serviceID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}
	var req updateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc, err := s.catalogSvc.Update(c.Request.Context(), c.GetHeader(adminIDHeader), serviceID, catalogdomain.UpdateServiceInput{
		Title:        req.Title,
		Price:        req.Price,
		Notes:        req.Notes,
		NeededFields: req.NeededFields,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": svc})
}

func (s *Server) DeactivateService(c *gin.Context) {
	serviceID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}

	if err := s.catalogSvc.Deactivate(c.Request.Context(), c.GetHeader(adminIDHeader), serviceID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
