package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	auditdomain "github.com/subdesklabs/subdesk/internal/audit/domain"
	auditservice "github.com/subdesklabs/subdesk/internal/audit/service"
	catalogdomain "github.com/subdesklabs/subdesk/internal/catalog/domain"
	catalogrepository "github.com/subdesklabs/subdesk/internal/catalog/repository"
	catalogservice "github.com/subdesklabs/subdesk/internal/catalog/service"
	"github.com/subdesklabs/subdesk/internal/clock"
	"github.com/subdesklabs/subdesk/internal/config"
	discountdomain "github.com/subdesklabs/subdesk/internal/discount/domain"
	discountrepository "github.com/subdesklabs/subdesk/internal/discount/repository"
	discountservice "github.com/subdesklabs/subdesk/internal/discount/service"
	"github.com/subdesklabs/subdesk/internal/idempotency"
	notificationdomain "github.com/subdesklabs/subdesk/internal/notification/domain"
	notificationrepository "github.com/subdesklabs/subdesk/internal/notification/repository"
	notificationservice "github.com/subdesklabs/subdesk/internal/notification/service"
	orderdomain "github.com/subdesklabs/subdesk/internal/order/domain"
	orderrepository "github.com/subdesklabs/subdesk/internal/order/repository"
	userdomain "github.com/subdesklabs/subdesk/internal/user/domain"
	userrepository "github.com/subdesklabs/subdesk/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type stubMessenger struct{ sent []string }

func (m *stubMessenger) Send(_ context.Context, chatID, text string) error {
	m.sent = append(m.sent, chatID+": "+text)
	return nil
}

type testEnv struct {
	srv       *Server
	db        *gorm.DB
	node      *snowflake.Node
	messenger *stubMessenger
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&notificationdomain.Notification{}, &userdomain.User{},
		&catalogdomain.Service{},
		&discountdomain.DiscountCode{}, &discountdomain.DiscountCodeService{}, &discountdomain.DiscountRedemption{},
		&orderdomain.Order{}, &auditdomain.AuditLog{},
	))

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fixedClock := clock.Fixed{T: testNow}
	cfg := config.Config{
		PriceDecimals: 2,
		QueueToken:    "secret-token",
		AdminIDs:      []string{"admin-1"},
	}

	auditSvc := auditservice.NewService(auditservice.ServiceParam{Log: log, GenID: node, Clock: fixedClock})
	orderRepo := orderrepository.Provide()
	messenger := &stubMessenger{}

	notifSvc := notificationservice.NewService(notificationservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixedClock, Cfg: cfg,
		Repo: notificationrepository.Provide(), UserRepo: userrepository.Provide(),
		Queue: nil, Messenger: messenger, Subscribers: nil,
		AuditSvc: auditSvc,
	})
	catalogSvc := catalogservice.NewService(catalogservice.ServiceParam{
		DB: db, Log: log, GenID: node, Cfg: cfg, Clock: fixedClock,
		Repo: catalogrepository.Provide(), AuditSvc: auditSvc,
	})
	discountSvc := discountservice.NewService(discountservice.ServiceParam{
		DB: db, Log: log, GenID: node, Cfg: cfg, Clock: fixedClock,
		Repo: discountrepository.Provide(),
		Guard: idempotency.NewGuard(redisClient, log), Redis: redisClient,
		OrderChecker: orderRepo, AuditSvc: auditSvc,
	})

	srv := NewServer(ServerParam{
		Log: log, Cfg: cfg, DB: db, Redis: redisClient,
		Guard:           idempotency.NewGuard(redisClient, log),
		OrderRepo:       orderRepo,
		OrderSvc:        nil,
		CatalogSvc:      catalogSvc,
		DiscountSvc:     discountSvc,
		NotificationSvc: notifSvc,
	})
	return &testEnv{srv: srv, db: db, node: node, messenger: messenger}
}

func (e *testEnv) seedPendingNotification(t *testing.T, chatID string) *notificationdomain.Notification {
	t.Helper()
	user := &userdomain.User{
		ID:            e.node.Generate(),
		ChatID:        chatID,
		Username:      "user-" + chatID,
		ReferralToken: "tok-" + chatID,
		CreatedAt:     testNow,
	}
	require.NoError(t, e.db.Create(user).Error)

	n := &notificationdomain.Notification{
		ID:             e.node.Generate(),
		Audience:       notificationdomain.AudienceUser,
		UserID:         &user.ID,
		MessageKey:     notificationdomain.KeyOrderApprovedUser,
		Payload:        datatypes.JSONMap{"service_title": "Premium", "end_date": "2026-05-01"},
		SendAt:         testNow,
		Status:         notificationdomain.StatusPending,
		IdempotencyKey: "seed-" + t.Name(),
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	require.NoError(t, e.db.Create(n).Error)
	return n
}

func adminPost(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(adminIDHeader, "admin-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestQueueDispatchRejectsBadToken(t *testing.T) {
	env := newTestServer(t)
	router := env.srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/internal/queue/dispatch",
		strings.NewReader(`{"notification_id":"1"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQueueDispatchDeduplicatesByMessageID(t *testing.T) {
	env := newTestServer(t)
	router := env.srv.Router()

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/internal/queue/dispatch",
			strings.NewReader(`{"notification_id":"123"}`))
		req.Header.Set("Authorization", "Bearer secret-token")
		req.Header.Set("X-Queue-Message-Id", "qm-77")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	require.Equal(t, http.StatusOK, first.Code)
	require.Contains(t, first.Body.String(), `"ok"`)

	second := do()
	require.Equal(t, http.StatusOK, second.Code)
	require.Contains(t, second.Body.String(), `"duplicate"`)
}

func TestQueueDispatchRetryAfterFailureStillDelivers(t *testing.T) {
	env := newTestServer(t)
	router := env.srv.Router()
	n := env.seedPendingNotification(t, "chat-1")

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/internal/queue/dispatch",
			strings.NewReader(`{"notification_id":"`+n.ID.String()+`"}`))
		req.Header.Set("Authorization", "Bearer secret-token")
		req.Header.Set("X-Queue-Message-Id", "qm-55")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// first attempt hits a transient storage failure after the reservation
	require.NoError(t, env.db.Migrator().RenameTable("notifications", "notifications_offline"))
	first := do()
	require.Equal(t, http.StatusInternalServerError, first.Code)
	require.NoError(t, env.db.Migrator().RenameTable("notifications_offline", "notifications"))

	// the queue's redelivery with the same message id must get a real attempt,
	// not a duplicate ack against the failed one
	second := do()
	require.Equal(t, http.StatusOK, second.Code)
	require.Contains(t, second.Body.String(), `"ok"`)
	require.Len(t, env.messenger.sent, 1)
	require.Contains(t, env.messenger.sent[0], "chat-1: ")

	var reloaded notificationdomain.Notification
	require.NoError(t, env.db.First(&reloaded, "id = ?", n.ID).Error)
	require.Equal(t, notificationdomain.StatusSent, reloaded.Status)
}

func TestAdminRoutesRequireConfiguredAdmin(t *testing.T) {
	env := newTestServer(t)
	router := env.srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/review", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/orders/review", nil)
	req.Header.Set(adminIDHeader, "not-an-admin")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/orders/review", nil)
	req.Header.Set(adminIDHeader, "admin-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminServiceEndpoints(t *testing.T) {
	env := newTestServer(t)
	router := env.srv.Router()

	created := adminPost(router, "/admin/services",
		`{"title":"Premium","price":"100.00","duration_days":30,"needed_fields":["account"]}`)
	require.Equal(t, http.StatusCreated, created.Code)

	var svc catalogdomain.Service
	require.NoError(t, env.db.First(&svc, "title = ?", "Premium").Error)
	require.True(t, svc.Active)
	require.Equal(t, "admin-1", svc.CreatedBy)

	bad := adminPost(router, "/admin/services", `{"title":"Broken","price":"??","duration_days":30}`)
	require.Equal(t, http.StatusBadRequest, bad.Code)

	updated := adminPost(router, "/admin/services/"+svc.ID.String(), `{"price":"120.00"}`)
	require.Equal(t, http.StatusOK, updated.Code)

	deactivated := adminPost(router, "/admin/services/"+svc.ID.String()+"/deactivate", "")
	require.Equal(t, http.StatusOK, deactivated.Code)
	require.NoError(t, env.db.First(&svc, "id = ?", svc.ID).Error)
	require.False(t, svc.Active)

	missing := adminPost(router, "/admin/services/999/deactivate", "")
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAdminDiscountEndpoints(t *testing.T) {
	env := newTestServer(t)
	router := env.srv.Router()

	created := adminPost(router, "/admin/discounts",
		`{"code":" spring ","type":"percent","amount":"20"}`)
	require.Equal(t, http.StatusCreated, created.Code)

	var code discountdomain.DiscountCode
	require.NoError(t, env.db.First(&code, "code = ?", "SPRING").Error)
	require.True(t, code.Active)

	badType := adminPost(router, "/admin/discounts",
		`{"code":"FLAT","type":"bogus","amount":"5.00"}`)
	require.Equal(t, http.StatusBadRequest, badType.Code)

	updated := adminPost(router, "/admin/discounts/"+code.ID.String(), `{"min_order_amount":"50.00"}`)
	require.Equal(t, http.StatusOK, updated.Code)

	deactivated := adminPost(router, "/admin/discounts/"+code.ID.String()+"/deactivate", "")
	require.Equal(t, http.StatusOK, deactivated.Code)
	require.NoError(t, env.db.First(&code, "id = ?", code.ID).Error)
	require.False(t, code.Active)

	missing := adminPost(router, "/admin/discounts/999/deactivate", "")
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestReadiness(t *testing.T) {
	env := newTestServer(t)
	router := env.srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
