package newebpay

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"github.com/kevin07696/newebpay-service/pkg/timeutil"
)

// FlexInt decodes an integer the gateway may send as a JSON number or a string
type FlexInt struct {
	Value int64
	Valid bool
}

// UnmarshalJSON accepts 3, 3.0, "3", "" and null
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = FlexInt{}
		return nil
	}

	s := string(data)
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			*f = FlexInt{}
			return nil
		}
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt{Value: v, Valid: true}
		return nil
	}
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cannot coerce %q to integer: %w", s, err)
	}
	// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive
	if math.IsNaN(fv) || math.IsInf(fv, 0) || fv < math.MinInt64 || fv >= math.MaxInt64 {
		return fmt.Errorf("cannot coerce %q to integer: out of range", s)
	}
	*f = FlexInt{Value: int64(fv), Valid: true}
	return nil
}

// MarshalJSON writes the value as a number
func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}

// responseHeader is common to every gateway JSON response
type responseHeader struct {
	Status  *string         `json:"Status"`
	Message string          `json:"Message"`
	Result  json.RawMessage `json:"Result"`
}

// CloseResultData is the Result object of Close and Cancel responses
type CloseResultData struct {
	MerchantID      string  `json:"MerchantID"`
	TradeNo         string  `json:"TradeNo"`
	MerchantOrderNo string  `json:"MerchantOrderNo"`
	Amt             FlexInt `json:"Amt"`
}

// QueryResultData is the Result object of a QueryTradeInfo response
type QueryResultData struct {
	MerchantID      string  `json:"MerchantID"`
	TradeNo         string  `json:"TradeNo"`
	MerchantOrderNo string  `json:"MerchantOrderNo"`
	PaymentType     string  `json:"PaymentType"`
	CreateTime      string  `json:"CreateTime"`
	PayTime         string  `json:"PayTime"`
	FundTime        string  `json:"FundTime"`
	RespondCode     string  `json:"RespondCode"`
	Auth            string  `json:"Auth"`
	ECI             string  `json:"ECI"`
	CheckCode       string  `json:"CheckCode"`
	Amt             FlexInt `json:"Amt"`
	TradeStatus     FlexInt `json:"TradeStatus"`
	CloseAmt        FlexInt `json:"CloseAmt"`
	CloseStatus     FlexInt `json:"CloseStatus"`
	BackBalance     FlexInt `json:"BackBalance"`
	BackStatus      FlexInt `json:"BackStatus"`
}

// TradeResult is the Result object of a decrypted notify or return payload
type TradeResult struct {
	MerchantID      string  `json:"MerchantID"`
	TradeNo         string  `json:"TradeNo"`
	MerchantOrderNo string  `json:"MerchantOrderNo"`
	PaymentType     string  `json:"PaymentType"`
	RespondType     string  `json:"RespondType"`
	PayTime         string  `json:"PayTime"`
	IP              string  `json:"IP"`
	EscrowBank      string  `json:"EscrowBank"`
	AuthBank        string  `json:"AuthBank"`
	RespondCode     string  `json:"RespondCode"`
	Auth            string  `json:"Auth"`
	Card6No         string  `json:"Card6No"`
	Card4No         string  `json:"Card4No"`
	ECI             string  `json:"ECI"`
	PaymentMethod   string  `json:"PaymentMethod"`
	Amt             FlexInt `json:"Amt"`
	Inst            FlexInt `json:"Inst"`
}

// TradeNotification is a decrypted payment notification or browser return
type TradeNotification struct {
	Status  string
	Message string
	Result  *TradeResult
}

// IsSuccess reports whether the gateway confirmed payment
func (n *TradeNotification) IsSuccess() bool {
	return n.Status == StatusSuccess
}

// ToOrder converts a successful notification into a paid order
func (n *TradeNotification) ToOrder(now time.Time) (*domain.Order, error) {
	if !n.IsSuccess() || n.Result == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "only successful notifications create orders").
			WithDetail("status", n.Status)
	}
	r := n.Result
	if r.MerchantOrderNo == "" {
		return nil, invalidResponse("notification result has no MerchantOrderNo", nil)
	}
	if !r.Amt.Valid || r.Amt.Value <= 0 {
		return nil, invalidResponse("notification result has no valid Amt", nil)
	}

	payTime := now
	if r.PayTime != "" {
		parsed, err := timeutil.ParseGatewayTime(r.PayTime)
		if err != nil {
			return nil, invalidResponse("notification PayTime is malformed", err)
		}
		payTime = parsed
	}

	return &domain.Order{
		MerchantOrderNo: r.MerchantOrderNo,
		TradeNo:         r.TradeNo,
		Amount:          r.Amt.Value,
		ItemDesc:        "Order " + r.MerchantOrderNo,
		PayTime:         payTime,
		Status:          domain.OrderStatusPaid,
		Card4No:         r.Card4No,
		PaymentType:     r.PaymentType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ParseTradeNotification decodes the decrypted JSON of a notify or return payload.
// On failure the gateway may send Result as an empty array, which is treated as absent.
func ParseTradeNotification(plaintext string) (*TradeNotification, error) {
	header, err := decodeHeader([]byte(plaintext))
	if err != nil {
		return nil, err
	}

	n := &TradeNotification{Status: *header.Status, Message: header.Message}
	if isObject(header.Result) {
		var result TradeResult
		if err := json.Unmarshal(header.Result, &result); err != nil {
			return nil, invalidResponse("notification result is malformed", err)
		}
		n.Result = &result
	}
	return n, nil
}

// ParseCloseResponse interprets a Close or Cancel response.
// A non-success status becomes GATEWAY_REJECTED carrying the raw status and message.
func ParseCloseResponse(body []byte) (*ports.CloseResult, error) {
	header, err := decodeHeader(body)
	if err != nil {
		return nil, err
	}
	if *header.Status != StatusSuccess {
		return nil, domain.NewGatewayRejected(*header.Status, header.Message)
	}

	result := &ports.CloseResult{Status: *header.Status, Message: header.Message}
	if isObject(header.Result) {
		var data CloseResultData
		if err := json.Unmarshal(header.Result, &data); err != nil {
			return nil, invalidResponse("close result is malformed", err)
		}
		result.MerchantID = data.MerchantID
		result.MerchantOrderNo = data.MerchantOrderNo
		result.TradeNo = data.TradeNo
		result.Amount = data.Amt.Value
	}
	return result, nil
}

// ParseQueryResponse interprets a QueryTradeInfo response into the trade state.
// When the result carries a CheckCode it is verified against the credential.
func ParseQueryResponse(body []byte, cred domain.Credential) (*domain.TradeState, error) {
	header, err := decodeHeader(body)
	if err != nil {
		return nil, err
	}
	if *header.Status != StatusSuccess {
		return nil, domain.NewGatewayRejected(*header.Status, header.Message)
	}
	if !isObject(header.Result) {
		return nil, invalidResponse("query response has no result", nil)
	}

	var data QueryResultData
	if err := json.Unmarshal(header.Result, &data); err != nil {
		return nil, invalidResponse("query result is malformed", err)
	}
	if !data.CloseStatus.Valid || !data.BackStatus.Valid {
		return nil, invalidResponse("query result is missing CloseStatus or BackStatus", nil)
	}

	if data.CheckCode != "" {
		expected := CheckCode(map[string]string{
			"Amt":             FormatAmount(data.Amt.Value),
			"MerchantID":      data.MerchantID,
			"MerchantOrderNo": data.MerchantOrderNo,
			"TradeNo":         data.TradeNo,
		}, cred)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(data.CheckCode)) != 1 {
			observability.RecordSignatureFailure("check_code")
			return nil, domain.NewDomainError(domain.ErrorCodeSignatureMismatch, "query response check code does not match").
				WithDetail("merchant_order_no", data.MerchantOrderNo)
		}
	}

	return &domain.TradeState{
		MerchantOrderNo: data.MerchantOrderNo,
		TradeNo:         data.TradeNo,
		TradeStatus:     strconv.FormatInt(data.TradeStatus.Value, 10),
		PaymentType:     data.PaymentType,
		PayTime:         data.PayTime,
		Amount:          data.Amt.Value,
		CloseAmount:     data.CloseAmt.Value,
		BackBalance:     data.BackBalance.Value,
		CloseStatus:     domain.CloseStatus(data.CloseStatus.Value),
		BackStatus:      domain.BackStatus(data.BackStatus.Value),
	}, nil
}

func decodeHeader(body []byte) (*responseHeader, error) {
	var header responseHeader
	if err := json.Unmarshal(bytes.TrimSpace(body), &header); err != nil {
		return nil, invalidResponse("response is not valid JSON", err)
	}
	if header.Status == nil {
		return nil, invalidResponse("response has no Status field", nil)
	}
	return &header, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func invalidResponse(message string, err error) error {
	return domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, message, err)
}
