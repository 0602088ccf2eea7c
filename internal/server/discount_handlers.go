package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	discountdomain "github.com/subdesklabs/subdesk/internal/discount/domain"
	discountservice "github.com/subdesklabs/subdesk/internal/discount/service"
)

type createDiscountRequest struct {
	Code              string     `json:"code" binding:"required"`
	Type              string     `json:"type" binding:"required"`
	Amount            string     `json:"amount" binding:"required"`
	MinOrderAmount    *string    `json:"min_order_amount"`
	MaxDiscountAmount *string    `json:"max_discount_amount"`
	StartsAt          *time.Time `json:"starts_at"`
	EndsAt            *time.Time `json:"ends_at"`
	TotalUsageLimit   *int       `json:"total_usage_limit"`
	PerUserUsageLimit *int       `json:"per_user_usage_limit"`
	FirstPurchaseOnly bool       `json:"first_purchase_only"`
	ServiceIDs        []string   `json:"service_ids"`
}

func (s *Server) CreateDiscount(c *gin.Context) {
	var req createDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	discountType := discountdomain.DiscountType(req.Type)
	if discountType != discountdomain.TypePercent && discountType != discountdomain.TypeFixed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid discount type"})
		return
	}
	serviceIDs, err := parseServiceIDs(req.ServiceIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}

	code, err := s.discountSvc.Create(c.Request.Context(), c.GetHeader(adminIDHeader), discountservice.CreateCodeInput{
		Code:              req.Code,
		Type:              discountType,
		Amount:            req.Amount,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		TotalUsageLimit:   req.TotalUsageLimit,
		PerUserUsageLimit: req.PerUserUsageLimit,
		FirstPurchaseOnly: req.FirstPurchaseOnly,
		ServiceIDs:        serviceIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"discount_code": code})
}

type updateDiscountRequest struct {
	Amount            *string    `json:"amount"`
	MinOrderAmount    *string    `json:"min_order_amount"`
	MaxDiscountAmount *string    `json:"max_discount_amount"`
	StartsAt          *time.Time `json:"starts_at"`
	EndsAt            *time.Time `json:"ends_at"`
	TotalUsageLimit   *int       `json:"total_usage_limit"`
	PerUserUsageLimit *int       `json:"per_user_usage_limit"`
	FirstPurchaseOnly *bool      `json:"first_purchase_only"`
	ServiceIDs        []string   `json:"service_ids"`
}

func (s *Server) UpdateDiscount(c *gin.Context) {
	codeID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid discount code id"})
		return
	}
	var req updateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	serviceIDs, err := parseServiceIDs(req.ServiceIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}

	code, err := s.discountSvc.Update(c.Request.Context(), c.GetHeader(adminIDHeader), codeID, discountservice.UpdateCodeInput{
		Amount:            req.Amount,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		TotalUsageLimit:   req.TotalUsageLimit,
		PerUserUsageLimit: req.PerUserUsageLimit,
		FirstPurchaseOnly: req.FirstPurchaseOnly,
		ServiceIDs:        serviceIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discount_code": code})
}

func (s *Server) DeactivateDiscount(c *gin.Context) {
	codeID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid discount code id"})
		return
	}

	if err := s.discountSvc.Deactivate(c.Request.Context(), c.GetHeader(adminIDHeader), codeID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// parseServiceIDs keeps nil (scope untouched) distinct from an explicit empty
// list (scope cleared, code applies to all services).
func parseServiceIDs(raw []string) ([]snowflake.ID, error) {
	if raw == nil {
		return nil, nil
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, r := range raw {
		id, err := snowflake.ParseString(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
