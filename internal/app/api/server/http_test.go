package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	nh "github.com/sereniyou/payments/internal/app/service/notification_handler"
	notificationlog "github.com/sereniyou/payments/internal/app/service/notification_log"
	"github.com/sereniyou/payments/internal/app/service/payment"
	"github.com/sereniyou/payments/internal/app/service/statistics"
	"github.com/sereniyou/payments/internal/app/service/subscription"
	cfgpkg "github.com/sereniyou/payments/pkg/config"
)

func newTestEngine(t *testing.T, cfg *cfgpkg.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := newEngine(cfg)
	err := registerRoutes(routeParams{
		Lc:       fxtest.NewLifecycle(t),
		Engine:   r,
		Log:      zap.NewNop().Sugar(),
		Cfg:      cfg,
		Payments: &payment.Service{},
		Store:    &payment.GormStore{},
		Notif:    &nh.NotificationHandler{},
		Stats:    &statistics.Service{},
		NotifLog: &notificationlog.Service{},
		Subs:     &subscription.Service{},
	})
	require.NoError(t, err)
	return r
}

func TestRegisterRoutes(t *testing.T) {
	r := newTestEngine(t, &cfgpkg.Config{})
	routes := lo.Map(r.Routes(), func(rt gin.RouteInfo, _ int) string { return rt.Method + " " + rt.Path })

	for _, prefix := range PaymentPrefixes {
		require.Contains(t, routes, "POST "+prefix+"/initiate-payment")
		require.Contains(t, routes, "POST "+prefix+"/check-payment-status")
		require.Contains(t, routes, "POST "+prefix+"/mpesa-callback")
	}
	require.Contains(t, routes, "POST /api/v1/admin/list_payment_requests")
	require.Contains(t, routes, "POST /api/v1/admin/get_payment_statistic")
	require.Contains(t, routes, "POST /api/v1/admin/get_payment_trail")
	require.Contains(t, routes, "GET /healthz")
	require.Contains(t, routes, "GET /readyz")
	require.Contains(t, routes, "GET /swagger/*any")
}

func TestHealthz(t *testing.T) {
	r := newTestEngine(t, &cfgpkg.Config{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-9")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"code":0,"message":"ok","data":{"status":"ok"}}`, w.Body.String())
	require.Equal(t, "trace-9", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	r := newTestEngine(t, &cfgpkg.Config{CORS: cfgpkg.CORSConfig{AllowOrigins: []string{"*"}}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/initiate-payment", nil)
	req.Header.Set("Origin", "https://app.sereniyou.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestAdminRequiresServiceKey(t *testing.T) {
	r := newTestEngine(t, &cfgpkg.Config{Identity: cfgpkg.IdentityConfig{ServiceRoleKey: "svc"}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/list_payment_requests", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCallbackGuardConfigured(t *testing.T) {
	cfg := &cfgpkg.Config{Mpesa: cfgpkg.MpesaConfig{CallbackToken: "s3cret"}}
	r := newTestEngine(t, cfg)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/mpesa-callback", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegisterRoutes_BadAllowlist(t *testing.T) {
	cfg := &cfgpkg.Config{Mpesa: cfgpkg.MpesaConfig{CallbackAllowedIPs: []string{"bogus"}}}
	err := registerRoutes(routeParams{
		Lc:     fxtest.NewLifecycle(t),
		Engine: newEngine(cfg),
		Log:    zap.NewNop().Sugar(),
		Cfg:    cfg,
	})
	require.Error(t, err)
}
