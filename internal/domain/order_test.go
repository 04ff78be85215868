package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateMerchantOrderNo(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		code    ErrorCode
		wantErr bool
	}{
		{name: "valid_alphanumeric", input: "ORD1"},
		{name: "valid_with_underscore", input: "ORD_20240101_001"},
		{name: "valid_max_length", input: strings.Repeat("A", 30)},
		{name: "empty", input: "", wantErr: true, code: ErrorCodeValidationMissingField},
		{name: "too_long", input: strings.Repeat("A", 31), wantErr: true, code: ErrorCodeValidationFailed},
		{name: "hyphen_rejected", input: "ORD-1", wantErr: true, code: ErrorCodeValidationFailed},
		{name: "space_rejected", input: "ORD 1", wantErr: true, code: ErrorCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMerchantOrderNo(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.code, GetErrorCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOrder_MergeNotification_KeepsFirstValues(t *testing.T) {
	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	now := second.Add(time.Minute)

	existing := &Order{
		MerchantOrderNo: "ORD1",
		TradeNo:         "T1",
		Amount:          1200,
		Status:          OrderStatusRefunded,
		PayTime:         first,
		CreatedAt:       first,
	}
	incoming := &Order{
		MerchantOrderNo: "ORD1",
		TradeNo:         "T1",
		Amount:          1200,
		Status:          OrderStatusPaid,
		PayTime:         second,
		Card4No:         "1111",
	}

	existing.MergeNotification(incoming, now)

	assert.Equal(t, first, existing.PayTime)
	assert.Equal(t, first, existing.CreatedAt)
	assert.Equal(t, OrderStatusRefunded, existing.Status, "refunded never regresses to paid")
	assert.Equal(t, "1111", existing.Card4No)
	assert.Equal(t, now, existing.UpdatedAt)
}

func TestOrder_IsRefundable(t *testing.T) {
	assert.True(t, (&Order{Status: OrderStatusPaid, TradeNo: "T1"}).IsRefundable())
	assert.False(t, (&Order{Status: OrderStatusPaid}).IsRefundable())
	assert.False(t, (&Order{Status: OrderStatusRefunded, TradeNo: "T1"}).IsRefundable())
}
