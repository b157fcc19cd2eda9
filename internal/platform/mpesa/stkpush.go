package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sereniyou/payments/pkg/metrics"
	"github.com/sereniyou/payments/pkg/tool"
)

const transactionTypePayBill = "CustomerPayBillOnline"

// STKPushRequest is the processrequest body. Field names follow Daraja.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// PushInput is what the caller decides; everything else comes from configuration.
type PushInput struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
}

// BuildSTKPushRequest signs a push for in at the given instant.
func (c *Client) BuildSTKPushRequest(in PushInput, at time.Time) *STKPushRequest {
	ts := Timestamp(at, c.loc)
	return &STKPushRequest{
		BusinessShortCode: c.shortcode,
		Password:          Password(c.shortcode, c.passkey, ts),
		Timestamp:         ts,
		TransactionType:   transactionTypePayBill,
		Amount:            in.Amount,
		PartyA:            in.PhoneNumber,
		PartyB:            c.shortcode,
		PhoneNumber:       in.PhoneNumber,
		CallBackURL:       c.callbackURL,
		AccountReference:  in.AccountReference,
		TransactionDesc:   c.transactionDesc,
	}
}

// STKPush sends the payment prompt to the customer's phone.
func (c *Client) STKPush(ctx context.Context, accessToken string, in PushInput) (*STKPushResponse, error) {
	if c.shortcode == "" || c.passkey == "" {
		return nil, fmt.Errorf("%w: shortcode or passkey missing", ErrConfiguration)
	}
	start := time.Now()
	defer metrics.ObserveBusinessProcess("mpesa", "stkpush", start)

	req := c.BuildSTKPushRequest(in, c.now())
	status, body, err := c.postJSON(ctx, stkPushPath, accessToken, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPushFailed, err)
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	if !isSuccess(status) || apiErr.present() {
		c.logger(ctx).Warnw("mpesa_stkpush_rejected",
			"status", status,
			"error_code", apiErr.ErrorCode,
			"request_id", apiErr.RequestID,
			"phone", tool.Mask(in.PhoneNumber, 4),
		)
		return nil, fmt.Errorf("%w: %s", ErrPushFailed, apiErr.message())
	}

	var resp STKPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrPushFailed, err)
	}
	if resp.ResponseCode != "" && resp.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: %s", ErrPushFailed, resp.ResponseDescription)
	}
	if resp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrPushFailed)
	}
	return &resp, nil
}
