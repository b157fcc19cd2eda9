package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sereniyou/payments/docs"
	"github.com/sereniyou/payments/internal/app/api/handlers"
	mw "github.com/sereniyou/payments/internal/app/api/middleware"
	nh "github.com/sereniyou/payments/internal/app/service/notification_handler"
	notificationlog "github.com/sereniyou/payments/internal/app/service/notification_log"
	"github.com/sereniyou/payments/internal/app/service/payment"
	"github.com/sereniyou/payments/internal/app/service/statistics"
	"github.com/sereniyou/payments/internal/app/service/subscription"
	cfgpkg "github.com/sereniyou/payments/pkg/config"
	metrics "github.com/sereniyou/payments/pkg/metrics"
)

// PaymentPrefixes are the two deployment layouts the payment endpoints are served under.
var PaymentPrefixes = []string{"/functions/v1", "/api"}

func newCORS(cfg *cfgpkg.Config) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", mw.HeaderRequestID},
		ExposeHeaders: []string{mw.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	origins := cfg.CORS.AllowOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	r.Use(newCORS(cfg))
	return r
}

type routeParams struct {
	fx.In

	Lc       fx.Lifecycle
	Engine   *gin.Engine
	Log      *zap.SugaredLogger
	Cfg      *cfgpkg.Config
	Payments *payment.Service
	Store    *payment.GormStore
	Notif    *nh.NotificationHandler
	Stats    *statistics.Service
	NotifLog *notificationlog.Service
	Subs     *subscription.Service
	DB       *gorm.DB `optional:"true"`
}

func registerRoutes(p routeParams) error {
	r, log, cfg := p.Engine, p.Log, p.Cfg

	// Prometheus metrics
	if cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return "unmatched"
			},
			Logger: log,
		})
		prom.SetListenAddress(cfg.MetricsAddr)
		prom.Use(r)
		p.Lc.Append(fx.StopHook(func(ctx context.Context) error {
			if srv := prom.Server(); srv != nil {
				return srv.Shutdown(ctx)
			}
			return nil
		}))
		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	var ping handlers.Pinger
	if p.DB != nil {
		ping = func(ctx context.Context) error {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	handlers.RegisterHealthRoutes(pub, ping, log)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	guard, err := mw.CallbackGuardMiddleware(cfg.Mpesa.CallbackToken, cfg.Mpesa.CallbackAllowedIPs)
	if err != nil {
		return err
	}
	if cfg.Mpesa.CallbackToken == "" && len(cfg.Mpesa.CallbackAllowedIPs) == 0 {
		log.Warnw("mpesa callback accepts unauthenticated requests; set mpesa.callback_token or mpesa.callback_allowed_ips")
	}
	for _, prefix := range PaymentPrefixes {
		g := r.Group(prefix)
		g.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
		handlers.RegisterPaymentRoutes(g, p.Payments, p.Notif, guard)
	}

	admin := r.Group("/api/v1/admin")
	admin.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.AdminAuthMiddleware(cfg.Identity.ServiceRoleKey))
	handlers.RegisterAdminPaymentRoutes(admin, p.Store, p.Stats, handlers.PaymentTrailSources{
		Payments:      p.Store,
		Notifications: p.NotifLog,
		Subscribers:   p.Subs,
	})
	return nil
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine, shutdowner fx.Shutdowner) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorw("server error", "err", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
