package mpesa

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CallbackEnvelope is the standard push-result envelope the gateway
// posts to the callback URL.
type CallbackEnvelope struct {
	Body struct {
		StkCallback *StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback carries the final outcome of one push request, keyed by
// the CheckoutRequestID issued at dispatch time.
type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata is the item list present on successful payments.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is one name/value pair of the callback metadata.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Succeeded reports whether the payer completed the payment.
func (c *StkCallback) Succeeded() bool {
	return c.ResultCode == 0
}

// ReceiptNumber returns the MpesaReceiptNumber metadata item, or "N/A"
// when absent.
func (c *StkCallback) ReceiptNumber() string {
	if v, ok := c.metadataValue("MpesaReceiptNumber"); ok {
		return v
	}
	return "N/A"
}

// AmountPaid returns the Amount metadata item as a display string, or
// "0" when absent.
func (c *StkCallback) AmountPaid() string {
	if v, ok := c.metadataValue("Amount"); ok {
		return v
	}
	return "0"
}

func (c *StkCallback) metadataValue(name string) (string, bool) {
	if c.CallbackMetadata == nil {
		return "", false
	}
	for _, item := range c.CallbackMetadata.Item {
		if item.Name != name || len(item.Value) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(item.Value, &s); err == nil {
			return s, true
		}
		var f float64
		if err := json.Unmarshal(item.Value, &f); err == nil {
			if f == float64(int64(f)) {
				return strconv.FormatInt(int64(f), 10), true
			}
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
	}
	return "", false
}

// ParseCallback decodes a callback envelope and returns the embedded
// result. A payload without the expected envelope yields an error so the
// handler can return the distinct invalid-payload acknowledgment.
func ParseCallback(data []byte) (*StkCallback, error) {
	var envelope CallbackEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}
	if envelope.Body.StkCallback == nil {
		return nil, fmt.Errorf("callback payload missing stkCallback body")
	}
	return envelope.Body.StkCallback, nil
}
