package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sereniyou/payments/pkg/metrics"
)

// errorCodeProcessing is what Daraja answers while the customer has not yet acted on the prompt.
const errorCodeProcessing = "500.001.1001"

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string      `json:"ResponseCode"`
	ResponseDescription string      `json:"ResponseDescription"`
	MerchantRequestID   string      `json:"MerchantRequestID"`
	CheckoutRequestID   string      `json:"CheckoutRequestID"`
	ResultCode          json.Number `json:"ResultCode"`
	ResultDesc          string      `json:"ResultDesc"`
}

// QueryResult is the final outcome of a push as reported by the query endpoint.
type QueryResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
}

// STKQuery asks Daraja for the outcome of a push. It returns ErrStillProcessing
// when the customer has not answered yet.
func (c *Client) STKQuery(ctx context.Context, accessToken, checkoutRequestID string) (*QueryResult, error) {
	if c.shortcode == "" || c.passkey == "" {
		return nil, fmt.Errorf("%w: shortcode or passkey missing", ErrConfiguration)
	}
	start := time.Now()
	defer metrics.ObserveBusinessProcess("mpesa", "stkquery", start)

	ts := Timestamp(c.now(), c.loc)
	status, body, err := c.postJSON(ctx, stkQueryPath, accessToken, &stkQueryRequest{
		BusinessShortCode: c.shortcode,
		Password:          Password(c.shortcode, c.passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.ErrorCode == errorCodeProcessing {
		return nil, ErrStillProcessing
	}
	if !isSuccess(status) || apiErr.present() {
		return nil, fmt.Errorf("%w: %s", ErrQueryFailed, apiErr.message())
	}

	var resp stkQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrQueryFailed, err)
	}
	code, err := strconv.Atoi(resp.ResultCode.String())
	if err != nil {
		return nil, fmt.Errorf("%w: unexpected ResultCode %q", ErrQueryFailed, resp.ResultCode)
	}
	return &QueryResult{
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        resp.ResultDesc,
	}, nil
}
