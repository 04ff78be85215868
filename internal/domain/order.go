package domain

import (
	"regexp"
	"time"
)

// OrderStatus is the local lifecycle of a paid order. It only moves forward.
type OrderStatus string

const (
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusRefunded OrderStatus = "refunded"
)

// MaxMerchantOrderNoLength is the gateway's limit on MerchantOrderNo.
const MaxMerchantOrderNoLength = 30

var merchantOrderNoPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Order is the local record of a payment confirmed by a verified gateway notification.
// Whether it can be refunded is never stored here; that comes from a live query.
type Order struct {
	PayTime         time.Time   `json:"payTime"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	RefundedAt      *time.Time  `json:"refundedAt,omitempty"`
	MerchantOrderNo string      `json:"merchantOrderNo"`
	TradeNo         string      `json:"tradeNo"`
	ItemDesc        string      `json:"itemDesc"`
	Card4No         string      `json:"card4No,omitempty"`
	PaymentType     string      `json:"paymentType,omitempty"`
	Status          OrderStatus `json:"status"`
	Amount          int64       `json:"amount"`
}

// IsRefunded returns true once the refund has been recorded
func (o *Order) IsRefunded() bool {
	return o.Status == OrderStatusRefunded
}

// IsRefundable returns true if the local state still allows a refund attempt.
// The gateway must additionally confirm CanRefund for the live trade.
func (o *Order) IsRefundable() bool {
	return o.Status == OrderStatusPaid && o.TradeNo != ""
}

// MergeNotification applies a repeated SUCCESS notification to an existing order.
// The first PayTime and CreatedAt win, and a refunded order never returns to paid.
func (o *Order) MergeNotification(incoming *Order, now time.Time) {
	if o.TradeNo == "" {
		o.TradeNo = incoming.TradeNo
	}
	if o.PayTime.IsZero() {
		o.PayTime = incoming.PayTime
	}
	if o.Card4No == "" {
		o.Card4No = incoming.Card4No
	}
	if o.PaymentType == "" {
		o.PaymentType = incoming.PaymentType
	}
	if o.ItemDesc == "" {
		o.ItemDesc = incoming.ItemDesc
	}
	if o.Amount == 0 {
		o.Amount = incoming.Amount
	}
	o.UpdatedAt = now
}

// ValidateMerchantOrderNo checks the gateway's format rules for a merchant order number
func ValidateMerchantOrderNo(no string) error {
	if no == "" {
		return WrapError(ErrorCodeValidationMissingField, "merchant order number is required", nil).
			WithDetail("field", "MerchantOrderNo")
	}
	if len(no) > MaxMerchantOrderNoLength {
		return NewDomainError(ErrorCodeValidationFailed, "merchant order number exceeds 30 characters").
			WithDetail("field", "MerchantOrderNo")
	}
	if !merchantOrderNoPattern.MatchString(no) {
		return NewDomainError(ErrorCodeValidationFailed, "merchant order number may only contain letters, digits and underscore").
			WithDetail("field", "MerchantOrderNo")
	}
	return nil
}
