package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sereniyou/payments/internal/app/service/payment"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/response"
	"github.com/sereniyou/payments/pkg/types"
)

const maxCallbackBody = 1 << 20

// PaymentService is the part of payment.Service the HTTP layer calls.
type PaymentService interface {
	Initiate(ctx context.Context, req *payment.InitiateRequest) (*payment.InitiateResult, error)
	CheckStatus(ctx context.Context, req *payment.StatusRequest) (*payment.StatusView, error)
}

// CallbackHandler processes raw provider callbacks.
type CallbackHandler interface {
	HandleMpesaCallback(ctx context.Context, body []byte, traceID string) (*payment.FinalizeResult, error)
}

type InitiatePaymentRequest struct {
	PhoneNumber string       `json:"phoneNumber"`
	PlanID      types.PlanID `json:"planId"`
}

type CheckPaymentStatusRequest struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
}

func writeError(c *gin.Context, err error) {
	c.JSON(payment.HTTPStatus(err), response.Error(err.Error()))
}

// @Summary      Initiate M-Pesa payment
// @Description  Sends an STK push for the selected plan to the caller's phone and records a pending payment.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        Authorization header string true "Bearer access token"
// @Param        request body InitiatePaymentRequest true "Phone number (254XXXXXXXXX) and plan"
// @Success      200  {object}  payment.InitiateResult
// @Failure      400  {object}  response.ErrorBody
// @Failure      401  {object}  response.ErrorBody
// @Failure      500  {object}  response.ErrorBody
// @Router       /api/initiate-payment [post]
func ApiInitiatePayment(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InitiatePaymentRequest
		// an unreadable body is reported like an empty one
		_ = c.ShouldBindJSON(&req)

		res, err := svc.Initiate(c.Request.Context(), &payment.InitiateRequest{
			AuthToken:   c.GetHeader("Authorization"),
			PhoneNumber: req.PhoneNumber,
			PlanID:      req.PlanID,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      Check M-Pesa payment status
// @Description  Returns the caller's payment request together with their subscription state.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        Authorization header string true "Bearer access token"
// @Param        request body CheckPaymentStatusRequest false "Checkout request id"
// @Param        checkoutRequestId query string false "Checkout request id (alternative to the body)"
// @Success      200  {object}  payment.StatusView
// @Failure      400  {object}  response.ErrorBody
// @Failure      401  {object}  response.ErrorBody
// @Failure      404  {object}  response.ErrorBody
// @Failure      500  {object}  response.ErrorBody
// @Router       /api/check-payment-status [post]
func ApiCheckPaymentStatus(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckPaymentStatusRequest
		if c.Request.ContentLength != 0 {
			_ = c.ShouldBindJSON(&req)
		}
		if req.CheckoutRequestID == "" {
			req.CheckoutRequestID = c.Query("checkoutRequestId")
		}

		view, err := svc.CheckStatus(c.Request.Context(), &payment.StatusRequest{
			AuthToken:         c.GetHeader("Authorization"),
			CheckoutRequestID: req.CheckoutRequestID,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// @Summary      M-Pesa result callback
// @Description  Receives the asynchronous STK push result from Daraja. Answers plain text.
// @Tags         Payment
// @Accept       json
// @Produce      plain
// @Param        request body mpesa.CallbackEnvelope true "Daraja callback envelope"
// @Success      200  {string}  string "OK"
// @Failure      400  {string}  string "Invalid callback format"
// @Failure      500  {string}  string "Error processing callback"
// @Router       /api/mpesa-callback [post]
func ApiMpesaCallback(h CallbackHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			c.String(http.StatusBadRequest, mpesa.ErrMalformedCallback.Error())
			return
		}

		_, err = h.HandleMpesaCallback(c.Request.Context(), body, logctx.TraceID(c.Request.Context()))
		switch {
		case err == nil:
			c.String(http.StatusOK, "OK")
		case errors.Is(err, mpesa.ErrMalformedCallback):
			c.String(http.StatusBadRequest, mpesa.ErrMalformedCallback.Error())
		case errors.Is(err, payment.ErrStorage), errors.Is(err, payment.ErrUnknownCheckout):
			c.String(http.StatusInternalServerError, "Error updating payment")
		default:
			c.String(http.StatusInternalServerError, "Error processing callback")
		}
	}
}

// RegisterPaymentRoutes mounts the three payment endpoints on r. callbackGuard
// runs before the callback handler only.
func RegisterPaymentRoutes(r gin.IRouter, svc PaymentService, cb CallbackHandler, callbackGuard gin.HandlerFunc) {
	r.POST("/initiate-payment", ApiInitiatePayment(svc))
	r.POST("/check-payment-status", ApiCheckPaymentStatus(svc))
	r.GET("/check-payment-status", ApiCheckPaymentStatus(svc))
	if callbackGuard != nil {
		r.POST("/mpesa-callback", callbackGuard, ApiMpesaCallback(cb))
		return
	}
	r.POST("/mpesa-callback", ApiMpesaCallback(cb))
}
