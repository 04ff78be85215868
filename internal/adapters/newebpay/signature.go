package newebpay

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/shopspring/decimal"
)

// CheckCode computes the Scheme A digest used on query responses:
// SHA256("HashIV={iv}&{sorted fields}&HashKey={key}"), uppercase hex.
func CheckCode(fields map[string]string, cred domain.Credential) string {
	return sha256Upper("HashIV=" + cred.HashIV + "&" + canonicalJoin(fields) + "&HashKey=" + cred.HashKey)
}

// CheckValue computes the Scheme B digest used on query requests:
// SHA256("IV={iv}&{sorted fields}&Key={key}"), uppercase hex.
// The prefixes differ from CheckCode; the two must not be interchanged.
func CheckValue(fields map[string]string, cred domain.Credential) string {
	return sha256Upper("IV=" + cred.HashIV + "&" + canonicalJoin(fields) + "&Key=" + cred.HashKey)
}

// canonicalJoin joins fields as K=V pairs sorted by key. Values are not URL encoded.
func canonicalJoin(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fields[k])
	}
	return sb.String()
}

// TruncateAmount drops any fractional part; the gateway only accepts whole amounts
func TruncateAmount(amount decimal.Decimal) int64 {
	return amount.Truncate(0).IntPart()
}

// FormatAmount renders an amount for interpolation into a signed string
func FormatAmount(amount int64) string {
	return strconv.FormatInt(amount, 10)
}
