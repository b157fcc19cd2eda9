package mpesa

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

const (
	MetadataReceiptNumber   = "MpesaReceiptNumber"
	MetadataTransactionDate = "TransactionDate"
	MetadataPhoneNumber     = "PhoneNumber"
	MetadataAmount          = "Amount"
)

// CallbackEnvelope is the body Daraja posts to the callback URL.
type CallbackEnvelope struct {
	Body *struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *int              `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values are strings or numbers; some items carry no value at all.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// CallbackResult is the validated content of a callback.
type CallbackResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	// Set only when ResultCode is 0 and the item is present.
	ReceiptNumber   *string
	TransactionDate *string
	PhoneNumber     *string
}

func (r *CallbackResult) Succeeded() bool {
	return r.ResultCode == 0
}

// ParseCallback validates the envelope and extracts the fields the payment flow uses.
// Missing metadata items are not an error.
func ParseCallback(body []byte) (*CallbackResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var env CallbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if env.Body == nil || env.Body.STKCallback == nil {
		return nil, ErrMalformedCallback
	}
	cb := env.Body.STKCallback
	if cb.CheckoutRequestID == "" || cb.ResultCode == nil {
		return nil, fmt.Errorf("%w: CheckoutRequestID and ResultCode are required", ErrMalformedCallback)
	}

	res := &CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if res.Succeeded() && cb.CallbackMetadata != nil {
		items := cb.CallbackMetadata.Item
		res.ReceiptNumber = metadataValue(items, MetadataReceiptNumber)
		res.TransactionDate = metadataValue(items, MetadataTransactionDate)
		res.PhoneNumber = metadataValue(items, MetadataPhoneNumber)
	}
	return res, nil
}

func metadataValue(items []MetadataItem, name string) *string {
	item, ok := lo.Find(items, func(it MetadataItem) bool { return it.Name == name })
	if !ok || item.Value == nil {
		return nil
	}
	switch v := item.Value.(type) {
	case string:
		return &v
	case json.Number:
		return lo.ToPtr(v.String())
	default:
		return lo.ToPtr(fmt.Sprint(v))
	}
}
