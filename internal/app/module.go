package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/sereniyou/payments/internal/app/api/server"
	notificationhandler "github.com/sereniyou/payments/internal/app/service/notification_handler"
	notificationlog "github.com/sereniyou/payments/internal/app/service/notification_log"
	"github.com/sereniyou/payments/internal/app/service/payment"
	"github.com/sereniyou/payments/internal/app/service/reconcile"
	"github.com/sereniyou/payments/internal/app/service/statistics"
	"github.com/sereniyou/payments/internal/app/service/subscription"
	"github.com/sereniyou/payments/internal/platform/cache"
	"github.com/sereniyou/payments/internal/platform/db"
	"github.com/sereniyou/payments/internal/platform/events"
	"github.com/sereniyou/payments/internal/platform/identity"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/config"
	"github.com/sereniyou/payments/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	cache.Module,
	events.Module,
	identity.Module,
	mpesa.Module,
	server.Module,
	subscription.Module,
	payment.Module,
	reconcile.Module,
	statistics.Module,
	notificationlog.Module,
	notificationhandler.Module,
)
