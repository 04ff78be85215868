package timeutil

import (
	"fmt"
	"time"
)

// GatewayLayout is the timestamp format the payment gateway uses in payloads
const GatewayLayout = "2006-01-02 15:04:05"

// Taipei is the gateway's local zone. Taiwan observes no DST, so a fixed offset is exact.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// ParseGatewayTime parses a gateway timestamp in Taipei local time and returns it in UTC
func ParseGatewayTime(value string) (time.Time, error) {
	t, err := time.ParseInLocation(GatewayLayout, value, Taipei)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid gateway time %q: %w", value, err)
	}
	return t.UTC(), nil
}

// FormatGatewayTime renders t in the gateway's layout and zone
func FormatGatewayTime(t time.Time) string {
	return t.In(Taipei).Format(GatewayLayout)
}

