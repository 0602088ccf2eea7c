package server

import (
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	catalogdomain "github.com/subdesklabs/subdesk/internal/catalog/domain"
	"github.com/subdesklabs/subdesk/internal/config"
	discountservice "github.com/subdesklabs/subdesk/internal/discount/service"
	"github.com/subdesklabs/subdesk/internal/idempotency"
	notificationservice "github.com/subdesklabs/subdesk/internal/notification/service"
	orderdomain "github.com/subdesklabs/subdesk/internal/order/domain"
	orderservice "github.com/subdesklabs/subdesk/internal/order/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServerParam struct {
	fx.In

	Log             *zap.Logger
	Cfg             config.Config
	DB              *gorm.DB
	Redis           *goredis.Client
	Guard           *idempotency.Guard
	OrderRepo       orderdomain.Repository
	OrderSvc        *orderservice.Service
	CatalogSvc      catalogdomain.AdminService
	DiscountSvc     *discountservice.Service
	NotificationSvc *notificationservice.Service
}

type Server struct {
	log             *zap.Logger
	cfg             config.Config
	db              *gorm.DB
	redis           *goredis.Client
	guard           *idempotency.Guard
	orderRepo       orderdomain.Repository
	orderSvc        *orderservice.Service
	catalogSvc      catalogdomain.AdminService
	discountSvc     *discountservice.Service
	notificationSvc *notificationservice.Service
}

func NewServer(p ServerParam) *Server {
	return &Server{
		log:             p.Log.Named("server"),
		cfg:             p.Cfg,
		db:              p.DB,
		redis:           p.Redis,
		guard:           p.Guard,
		orderRepo:       p.OrderRepo,
		orderSvc:        p.OrderSvc,
		catalogSvc:      p.CatalogSvc,
		discountSvc:     p.DiscountSvc,
		notificationSvc: p.NotificationSvc,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/readyz", s.Readiness)

	internal := r.Group("/internal", s.queueTokenAuth())
	internal.POST("/queue/dispatch", s.QueueDispatch)

	admin := r.Group("/admin", s.adminAuth())
	admin.GET("/orders/review", s.ListReviewQueue)
	admin.POST("/orders/:id/approve", s.ApproveOrder)
	admin.POST("/orders/:id/dismiss", s.DismissOrder)
	admin.POST("/services", s.CreateService)
	admin.POST("/services/:id", s.UpdateService)
	admin.POST("/services/:id/deactivate", s.DeactivateService)
	admin.POST("/discounts", s.CreateDiscount)
	admin.POST("/discounts/:id", s.UpdateDiscount)
	admin.POST("/discounts/:id/deactivate", s.DeactivateDiscount)

	return r
}
