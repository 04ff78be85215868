package newebpay

import (
	"time"
)

const (
	// API versions per endpoint
	MPGVersion    = "2.0"
	CloseVersion  = "1.1"
	CancelVersion = "1.0"
	QueryVersion  = "1.3"

	RespondTypeJSON = "JSON"

	// IndexType 1 addresses the trade by gateway TradeNo
	IndexTypeTradeNo = 1

	StatusSuccess = "SUCCESS"

	mpgPath    = "/MPG/mpg_gateway"
	closePath  = "/API/CreditCard/Close"
	cancelPath = "/API/CreditCard/Cancel"
	queryPath  = "/API/QueryTradeInfo"
)

// Config contains endpoint and transport configuration for the NewebPay adapters
type Config struct {
	// API host
	// Sandbox: https://ccore.newebpay.com
	// Production: https://core.newebpay.com
	BaseURL string

	// HTTP client timeout, also the bound after which an operation is treated as unknown
	Timeout time.Duration

	// Query is read-only and may be retried; Close and Cancel never are
	QueryMaxRetries int

	// Payment methods enabled on the hosted checkout page, e.g. CREDIT
	PaymentMethods []string

	UserAgent string
}

// DefaultConfig returns default configuration for the given environment
func DefaultConfig(environment string) *Config {
	baseURL := "https://core.newebpay.com"
	if environment != "production" {
		baseURL = "https://ccore.newebpay.com"
	}

	return &Config{
		BaseURL:         baseURL,
		Timeout:         30 * time.Second,
		QueryMaxRetries: 2,
		PaymentMethods:  []string{"CREDIT"},
	}
}

// MPGURL is the hosted checkout endpoint the browser form posts to
func (c *Config) MPGURL() string { return c.BaseURL + mpgPath }

// CloseURL is the capture/refund endpoint
func (c *Config) CloseURL() string { return c.BaseURL + closePath }

// CancelURL is the authorization void endpoint
func (c *Config) CancelURL() string { return c.BaseURL + cancelPath }

// QueryURL is the trade query endpoint
func (c *Config) QueryURL() string { return c.BaseURL + queryPath }
