package handlers

import (
	"github.com/sereniyou/payments/internal/app/service/statistics"
	"github.com/sereniyou/payments/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespListPaymentRequests wraps ListPaymentRequestsResponse in the standard envelope.
type RespListPaymentRequests struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    ListPaymentRequestsResponse `json:"data"`
}

// RespPaymentStatistic wraps PaymentStatisticResponse in the standard envelope.
type RespPaymentStatistic struct {
	Code    response.APIResponseCode            `json:"code"`
	Message string                              `json:"message"`
	Data    statistics.PaymentStatisticResponse `json:"data"`
}

// RespPaymentTrail wraps GetPaymentTrailResponse in the standard envelope.
type RespPaymentTrail struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    GetPaymentTrailResponse  `json:"data"`
}
