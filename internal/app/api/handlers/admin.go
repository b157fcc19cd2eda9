package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/sereniyou/payments/internal/app/service/payment"
	"github.com/sereniyou/payments/internal/app/service/statistics"
	models "github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/pkg/response"
	"github.com/sereniyou/payments/pkg/tool"
	"github.com/sereniyou/payments/pkg/types"
)

type PaymentScanner interface {
	Scan(ctx context.Context, req *payment.ScanRequest) (*payment.ScanResponse, error)
}

type StatisticService interface {
	GetPaymentStatistic(ctx context.Context, req *statistics.PaymentStatisticRequest) (*statistics.PaymentStatisticResponse, error)
}

type PaymentLookup interface {
	FindByCheckout(ctx context.Context, checkoutRequestID string) (*models.PaymentRequest, error)
}

type NotificationTrail interface {
	ListByCheckout(ctx context.Context, checkoutRequestID string) ([]*models.PaymentNotificationLog, error)
}

type SubscriberLookup interface {
	GetSubscriber(ctx context.Context, userID string) (*models.Subscriber, error)
}

// PaymentTrailSources backs the support view of a single checkout.
type PaymentTrailSources struct {
	Payments      PaymentLookup
	Notifications NotificationTrail
	Subscribers   SubscriberLookup
}

type ListPaymentRequestsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type PaymentRequestItem struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"user_id"`
	CheckoutRequestID  string              `json:"checkout_request_id"`
	MerchantRequestID  string              `json:"merchant_request_id"`
	PhoneNumber        string              `json:"phone_number"`
	Amount             int64               `json:"amount"`
	PlanID             types.PlanID        `json:"plan_id"`
	Status             types.PaymentStatus `json:"status"`
	ResultCode         *int                `json:"result_code"`
	ResultDescription  *string             `json:"result_description"`
	TransactionID      *string             `json:"transaction_id"`
	TransactionDate    *string             `json:"transaction_date"`
	SettledPhoneNumber *string             `json:"settled_phone_number"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// toPaymentRequestItem masks phone numbers; admins see enough to correlate with a customer.
func toPaymentRequestItem(m *models.PaymentRequest) *PaymentRequestItem {
	item := &PaymentRequestItem{
		ID:                m.ID,
		UserID:            m.UserID,
		CheckoutRequestID: m.CheckoutRequestID,
		MerchantRequestID: m.MerchantRequestID,
		PhoneNumber:       tool.Mask(m.PhoneNumber, 4),
		Amount:            m.Amount,
		PlanID:            m.PlanID,
		Status:            m.Status,
		ResultCode:        m.ResultCode,
		ResultDescription: m.ResultDescription,
		TransactionID:     m.TransactionID,
		TransactionDate:   m.TransactionDate,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.SettledPhoneNumber != nil {
		item.SettledPhoneNumber = lo.ToPtr(tool.Mask(*m.SettledPhoneNumber, 4))
	}
	return item
}

type ListPaymentRequestsResponse struct {
	Items []*PaymentRequestItem `json:"items"`
	Total int64                 `json:"total"`
}

// @Summary      List Payment Requests (Admin)
// @Description  Retrieves a paginated and filterable list of M-Pesa payment requests.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        Authorization header string true "Bearer service role key"
// @Param        request body ListPaymentRequestsRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListPaymentRequests
// @Router       /api/v1/admin/list_payment_requests [post]
func ApiListPaymentRequests(scanner PaymentScanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListPaymentRequestsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := scanner.Scan(c.Request.Context(), &payment.ScanRequest{
			Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(res.Items, func(it *models.PaymentRequest, _ int) *PaymentRequestItem { return toPaymentRequestItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ListPaymentRequestsResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      Get Payment Statistics (Admin)
// @Description  Retrieves daily payment counts, GMV and subscriber statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        Authorization header string true "Bearer service role key"
// @Param        request body statistics.PaymentStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespPaymentStatistic
// @Router       /api/v1/admin/get_payment_statistic [post]
func ApiGetPaymentStatistic(svc StatisticService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.PaymentStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetPaymentStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type GetPaymentTrailRequest struct {
	CheckoutRequestID string `json:"checkout_request_id" binding:"required"`
}

type GetPaymentTrailResponse struct {
	Payment       *PaymentRequestItem              `json:"payment"`
	Notifications []*models.PaymentNotificationLog `json:"notifications"`
	Subscriber    *models.Subscriber               `json:"subscriber"`
}

// @Summary      Get Payment Trail (Admin)
// @Description  Returns one payment request with every callback received for it and the owner's subscription.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        Authorization header string true "Bearer service role key"
// @Param        request body GetPaymentTrailRequest true "Checkout request id"
// @Success      200  {object}  handlers.RespPaymentTrail
// @Router       /api/v1/admin/get_payment_trail [post]
func ApiGetPaymentTrail(src PaymentTrailSources) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GetPaymentTrailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		ctx := c.Request.Context()
		pr, err := src.Payments.FindByCheckout(ctx, req.CheckoutRequestID)
		if errors.Is(err, payment.ErrNotFound) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		logs, err := src.Notifications.ListByCheckout(ctx, req.CheckoutRequestID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		sub, err := src.Subscribers.GetSubscriber(ctx, pr.UserID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&GetPaymentTrailResponse{
			Payment:       toPaymentRequestItem(pr),
			Notifications: logs,
			Subscriber:    sub,
		}))
	}
}

func RegisterAdminPaymentRoutes(r gin.IRouter, scanner PaymentScanner, stats StatisticService, trail PaymentTrailSources) {
	r.POST("/list_payment_requests", ApiListPaymentRequests(scanner))
	r.POST("/get_payment_statistic", ApiGetPaymentStatistic(stats))
	r.POST("/get_payment_trail", ApiGetPaymentTrail(trail))
}
