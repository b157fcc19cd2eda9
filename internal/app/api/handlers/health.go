package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/response"
)

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// @Summary      Health check
// @Description  Liveness probe; does not touch dependencies
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "ok"}))
}

// @Summary      Readiness check
// @Description  Pings the database
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /readyz [get]
func Readyz(ping Pinger, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				logctx.FromGin(c, log).Warnf("readiness ping failed: %v", err)
				c.JSON(http.StatusServiceUnavailable, response.ErrorT(response.APIResponseCodeUnavailable, "database unavailable"))
				return
			}
		}
		c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "ready"}))
	}
}

func RegisterHealthRoutes(r gin.IRouter, ping Pinger, log *zap.SugaredLogger) {
	r.GET("/healthz", Healthz)
	r.GET("/readyz", Readyz(ping, log))
}
