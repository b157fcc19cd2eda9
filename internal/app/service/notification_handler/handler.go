package notification_handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	notificationlog "github.com/sereniyou/payments/internal/app/service/notification_log"
	"github.com/sereniyou/payments/internal/app/service/payment"
	models "github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/metrics"
	"github.com/sereniyou/payments/pkg/types"
)

// CallbackApplier finalizes payments from provider callbacks.
type CallbackApplier interface {
	ApplyCallback(ctx context.Context, cb *mpesa.CallbackResult) (*payment.FinalizeResult, error)
}

// LogSaver persists the notification trail.
type LogSaver interface {
	Save(ctx context.Context, entry *models.PaymentNotificationLog)
}

type NotificationHandler struct {
	payments CallbackApplier
	notifSvc LogSaver
	Logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewNotificationHandler(payments *payment.Service, notif *notificationlog.Service, log *zap.SugaredLogger) *NotificationHandler {
	return newHandler(payments, notif, log)
}

func newHandler(payments CallbackApplier, notif LogSaver, log *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{payments: payments, notifSvc: notif, Logger: log, now: time.Now}
}

// HandleMpesaCallback records the raw callback, applies it and records the
// outcome. A malformed body returns mpesa.ErrMalformedCallback; any other
// error means the provider should retry.
func (h *NotificationHandler) HandleMpesaCallback(ctx context.Context, body []byte, traceID string) (res *payment.FinalizeResult, resErr error) {
	log := logctx.FromCtx(ctx, h.Logger)
	data := rawJSON(body)

	cb, parseErr := mpesa.ParseCallback(body)
	var checkoutID string
	if cb != nil {
		checkoutID = cb.CheckoutRequestID
	}

	h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
		ProviderID:        string(types.PaymentProviderMpesa),
		TraceID:           traceID,
		CheckoutRequestID: checkoutID,
		NotificationTime:  h.now(),
		Data:              data,
		Status:            models.PaymentNotificationLogStatusReceived,
	})

	defer func() {
		result := callbackResult(res, resErr)
		metrics.IncMpesaCallback(result)

		resMap := map[string]any{"result": result}
		status := models.PaymentNotificationLogStatusHandled
		var userID *string
		if res != nil {
			resMap["payment_status"] = res.Payment.Status
			userID = lo.ToPtr(res.Payment.UserID)
			if !res.Transitioned && !res.Backfilled {
				status = models.PaymentNotificationLogStatusDuplicate
			}
		}
		if resErr != nil {
			resMap["error"] = resErr.Error()
			status = models.PaymentNotificationLogStatusHandleFailed
		}
		resBytes, _ := json.Marshal(resMap)
		h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
			ProviderID:        string(types.PaymentProviderMpesa),
			UserID:            userID,
			TraceID:           traceID,
			CheckoutRequestID: checkoutID,
			NotificationTime:  h.now(),
			Data:              data,
			Result:            lo.ToPtr(datatypes.JSON(resBytes)),
			Status:            status,
		})
	}()

	if parseErr != nil {
		log.Warnw("mpesa_callback_malformed", "err", parseErr)
		return nil, parseErr
	}

	log.Infow("mpesa_callback_received",
		"checkout_request_id", cb.CheckoutRequestID,
		"merchant_request_id", cb.MerchantRequestID,
		"result_code", cb.ResultCode,
		"result_desc", cb.ResultDesc,
	)
	return h.payments.ApplyCallback(ctx, cb)
}

func callbackResult(res *payment.FinalizeResult, err error) string {
	switch {
	case errors.Is(err, mpesa.ErrMalformedCallback):
		return "malformed"
	case errors.Is(err, payment.ErrUnknownCheckout):
		return "unknown_checkout"
	case err != nil:
		return "error"
	case res.Backfilled:
		return "receipt_backfilled"
	case !res.Transitioned:
		return "duplicate"
	default:
		return string(res.Payment.Status)
	}
}

// rawJSON keeps bodies that are not JSON as a quoted string so the jsonb column accepts them.
func rawJSON(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	b, _ := json.Marshal(string(body))
	return datatypes.JSON(b)
}
