package domain

// CloseStatus is the gateway's capture (request-payment) phase for a credit card trade.
type CloseStatus int

const (
	CloseStatusNotCaptured CloseStatus = 0
	CloseStatusQueued      CloseStatus = 1
	CloseStatusProcessing  CloseStatus = 2
	CloseStatusCompleted   CloseStatus = 3
	CloseStatusFailed      CloseStatus = 4
)

func (s CloseStatus) String() string {
	switch s {
	case CloseStatusNotCaptured:
		return "not yet captured"
	case CloseStatusQueued:
		return "capture requested, awaiting 21:00 batch"
	case CloseStatusProcessing:
		return "capture in progress at bank"
	case CloseStatusCompleted:
		return "capture complete"
	case CloseStatusFailed:
		return "capture failed"
	default:
		return "unknown"
	}
}

// CaptureStarted returns true once the gateway has accepted a capture request
func (s CloseStatus) CaptureStarted() bool {
	return s == CloseStatusQueued || s == CloseStatusProcessing || s == CloseStatusCompleted
}

// BackStatus is the gateway's refund phase for a credit card trade.
type BackStatus int

const (
	BackStatusNotRefunded BackStatus = 0
	BackStatusQueued      BackStatus = 1
	BackStatusProcessing  BackStatus = 2
	BackStatusCompleted   BackStatus = 3
	BackStatusFailed      BackStatus = 4
)

func (s BackStatus) String() string {
	switch s {
	case BackStatusNotRefunded:
		return "not refunded"
	case BackStatusQueued:
		return "refund requested, awaiting 21:00 batch"
	case BackStatusProcessing:
		return "refund in progress at bank"
	case BackStatusCompleted:
		return "refund complete"
	case BackStatusFailed:
		return "refund failed"
	default:
		return "unknown"
	}
}

// RefundStarted returns true when the gateway has accepted a refund request,
// whether or not it has settled yet.
func (s BackStatus) RefundStarted() bool {
	return s == BackStatusQueued || s == BackStatusProcessing || s == BackStatusCompleted
}

// CanRefund returns true only for a fully captured trade with no refund in flight
func CanRefund(closeStatus CloseStatus, backStatus BackStatus) bool {
	return closeStatus == CloseStatusCompleted && backStatus == BackStatusNotRefunded
}

// CanCapture returns true if the trade has not entered the capture pipeline
func CanCapture(closeStatus CloseStatus) bool {
	return closeStatus == CloseStatusNotCaptured
}

// TradeState is the gateway's view of a trade as returned by a query.
type TradeState struct {
	MerchantOrderNo string      `json:"merchantOrderNo"`
	TradeNo         string      `json:"tradeNo"`
	TradeStatus     string      `json:"tradeStatus"`
	PaymentType     string      `json:"paymentType"`
	PayTime         string      `json:"payTime"`
	Amount          int64       `json:"amount"`
	CloseAmount     int64       `json:"closeAmount"`
	BackBalance     int64       `json:"backBalance"`
	CloseStatus     CloseStatus `json:"closeStatus"`
	BackStatus      BackStatus  `json:"backStatus"`
}

// CanRefund reports whether the trade currently permits a refund
func (t *TradeState) CanRefund() bool {
	return CanRefund(t.CloseStatus, t.BackStatus)
}

// CanCapture reports whether the trade currently permits a capture
func (t *TradeState) CanCapture() bool {
	return CanCapture(t.CloseStatus)
}
