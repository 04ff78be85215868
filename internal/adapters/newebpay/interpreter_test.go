package newebpay

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexInt_Unmarshal(t *testing.T) {
	tests := []struct {
		raw     string
		want    FlexInt
		wantErr bool
	}{
		{raw: `3`, want: FlexInt{Value: 3, Valid: true}},
		{raw: `"3"`, want: FlexInt{Value: 3, Valid: true}},
		{raw: `3.0`, want: FlexInt{Value: 3, Valid: true}},
		{raw: `" 1200 "`, want: FlexInt{Value: 1200, Valid: true}},
		{raw: `""`, want: FlexInt{}},
		{raw: `null`, want: FlexInt{}},
		{raw: `"abc"`, wantErr: true},
		{raw: `"NaN"`, wantErr: true},
		{raw: `"Infinity"`, wantErr: true},
		{raw: `"-Inf"`, wantErr: true},
		{raw: `1e19`, wantErr: true},
		{raw: `"-1e19"`, wantErr: true},
		{raw: `-9007199254740992.0`, want: FlexInt{Value: -9007199254740992, Valid: true}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var got FlexInt
			err := json.Unmarshal([]byte(tt.raw), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func queryBody(closeStatus, backStatus any, checkCode string) []byte {
	body := map[string]any{
		"Status":  "SUCCESS",
		"Message": "查詢成功",
		"Result": map[string]any{
			"MerchantID":      "M001",
			"Amt":             1200,
			"TradeNo":         "T1",
			"MerchantOrderNo": "ORD1",
			"TradeStatus":     "1",
			"PaymentType":     "CREDIT",
			"PayTime":         "2026-03-01 18:00:00",
			"CheckCode":       checkCode,
			"CloseAmt":        "1200",
			"CloseStatus":     closeStatus,
			"BackBalance":     "1200",
			"BackStatus":      backStatus,
		},
	}
	raw, _ := json.Marshal(body)
	return raw
}

func validCheckCode() string {
	return CheckCode(map[string]string{
		"Amt":             "1200",
		"MerchantID":      "M001",
		"MerchantOrderNo": "ORD1",
		"TradeNo":         "T1",
	}, testCredential)
}

// TestParseQueryResponse_RefundMatrix covers every CloseStatus and BackStatus combination
func TestParseQueryResponse_RefundMatrix(t *testing.T) {
	for closeStatus := 0; closeStatus <= 4; closeStatus++ {
		for backStatus := 0; backStatus <= 4; backStatus++ {
			name := fmt.Sprintf("close=%d/back=%d", closeStatus, backStatus)
			t.Run(name, func(t *testing.T) {
				// the gateway mixes strings and numbers; exercise both
				state, err := ParseQueryResponse(queryBody(fmt.Sprint(closeStatus), backStatus, validCheckCode()), testCredential)
				require.NoError(t, err)

				assert.Equal(t, closeStatus == 3 && backStatus == 0, state.CanRefund())
				assert.Equal(t, closeStatus == 0, state.CanCapture())
				assert.Equal(t, domain.CloseStatus(closeStatus), state.CloseStatus)
				assert.Equal(t, domain.BackStatus(backStatus), state.BackStatus)
			})
		}
	}
}

func TestParseQueryResponse(t *testing.T) {
	t.Run("fields", func(t *testing.T) {
		state, err := ParseQueryResponse(queryBody(3, "0", validCheckCode()), testCredential)
		require.NoError(t, err)
		assert.Equal(t, &domain.TradeState{
			MerchantOrderNo: "ORD1",
			TradeNo:         "T1",
			TradeStatus:     "1",
			PaymentType:     "CREDIT",
			PayTime:         "2026-03-01 18:00:00",
			Amount:          1200,
			CloseAmount:     1200,
			BackBalance:     1200,
			CloseStatus:     domain.CloseStatusCompleted,
			BackStatus:      domain.BackStatusNotRefunded,
		}, state)
	})

	t.Run("check code absent is accepted", func(t *testing.T) {
		_, err := ParseQueryResponse(queryBody(3, 0, ""), testCredential)
		assert.NoError(t, err)
	})

	t.Run("check code mismatch", func(t *testing.T) {
		_, err := ParseQueryResponse(queryBody(3, 0, "DEADBEEF"), testCredential)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSignatureMismatch))
	})

	t.Run("check code differing in one character", func(t *testing.T) {
		code := validCheckCode()
		last := byte('0')
		if code[len(code)-1] == '0' {
			last = '1'
		}
		_, err := ParseQueryResponse(queryBody(3, 0, code[:len(code)-1]+string(last)), testCredential)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSignatureMismatch))
	})

	t.Run("check code lowercase is rejected", func(t *testing.T) {
		_, err := ParseQueryResponse(queryBody(3, 0, strings.ToLower(validCheckCode())), testCredential)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSignatureMismatch))
	})

	t.Run("missing statuses", func(t *testing.T) {
		_, err := ParseQueryResponse(queryBody(nil, 0, ""), testCredential)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayInvalidResponse))
	})

	t.Run("non-finite status", func(t *testing.T) {
		_, err := ParseQueryResponse(queryBody("NaN", 0, validCheckCode()), testCredential)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayInvalidResponse))
	})

	t.Run("rejected", func(t *testing.T) {
		_, err := ParseQueryResponse([]byte(`{"Status":"TRA10021","Message":"查無交易","Result":[]}`), testCredential)
		rej, ok := domain.AsGatewayRejection(err)
		require.True(t, ok)
		assert.Equal(t, "TRA10021", rej.Status)
		assert.Equal(t, "查無交易", rej.Message)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseQueryResponse([]byte(`<html>502</html>`), testCredential)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayInvalidResponse))
	})
}

func TestParseCloseResponse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		res, err := ParseCloseResponse([]byte(`{"Status":"SUCCESS","Message":"退款成功","Result":{"MerchantID":"M001","Amt":"1200","TradeNo":"T1","MerchantOrderNo":"ORD1"}}`))
		require.NoError(t, err)
		assert.Equal(t, "SUCCESS", res.Status)
		assert.Equal(t, "T1", res.TradeNo)
		assert.Equal(t, int64(1200), res.Amount)
	})

	t.Run("rejected keeps raw code", func(t *testing.T) {
		_, err := ParseCloseResponse([]byte(`{"Status":"TRA10035","Message":"退款金額錯誤","Result":[]}`))
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayRejected))
		rej, ok := domain.AsGatewayRejection(err)
		require.True(t, ok)
		assert.Equal(t, "TRA10035", rej.Status)
	})

	t.Run("no status", func(t *testing.T) {
		_, err := ParseCloseResponse([]byte(`{"Message":"x"}`))
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayInvalidResponse))
	})
}

func TestParseTradeNotification(t *testing.T) {
	t.Run("success converts to paid order", func(t *testing.T) {
		n, err := ParseTradeNotification(`{"Status":"SUCCESS","Message":"授權成功","Result":{"MerchantID":"M001","Amt":1200,"TradeNo":"T1","MerchantOrderNo":"ORD1","PaymentType":"CREDIT","PayTime":"2026-03-01 18:00:00","Card4No":"2222"}}`)
		require.NoError(t, err)
		require.True(t, n.IsSuccess())

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		order, err := n.ToOrder(now)
		require.NoError(t, err)
		assert.Equal(t, "ORD1", order.MerchantOrderNo)
		assert.Equal(t, int64(1200), order.Amount)
		assert.Equal(t, "Order ORD1", order.ItemDesc)
		assert.Equal(t, domain.OrderStatusPaid, order.Status)
		// 18:00 Taipei is 10:00 UTC
		assert.True(t, order.PayTime.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("failure with empty array result", func(t *testing.T) {
		n, err := ParseTradeNotification(`{"Status":"MPG03009","Message":"交易失敗","Result":[]}`)
		require.NoError(t, err)
		assert.False(t, n.IsSuccess())
		assert.Nil(t, n.Result)

		_, err = n.ToOrder(time.Now())
		assert.Error(t, err)
	})

	t.Run("missing amount", func(t *testing.T) {
		n, err := ParseTradeNotification(`{"Status":"SUCCESS","Message":"","Result":{"MerchantOrderNo":"ORD1"}}`)
		require.NoError(t, err)
		_, err = n.ToOrder(time.Now())
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayInvalidResponse))
	})
}
