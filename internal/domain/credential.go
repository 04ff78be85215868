package domain

import (
	"encoding/json"

	"go.uber.org/zap/zapcore"
)

const (
	HashKeyLength = 32
	HashIVLength  = 16

	redacted = "[REDACTED]"
)

// Credential is the merchant's gateway identity. It is loaded once at startup
// and must never appear in logs.
type Credential struct {
	MerchantID string `json:"merchant_id"`
	HashKey    string `json:"hash_key"`
	HashIV     string `json:"hash_iv"`
}

// Validate checks the AES-256 key and CBC IV lengths
func (c Credential) Validate() error {
	if c.MerchantID == "" {
		return NewDomainError(ErrorCodeInvalidCredential, "merchant id is required")
	}
	if len(c.HashKey) != HashKeyLength {
		return NewDomainError(ErrorCodeInvalidCredential, "hash key must be 32 bytes").
			WithDetail("length", len(c.HashKey))
	}
	if len(c.HashIV) != HashIVLength {
		return NewDomainError(ErrorCodeInvalidCredential, "hash iv must be 16 bytes").
			WithDetail("length", len(c.HashIV))
	}
	return nil
}

func (c Credential) String() string {
	return "Credential{MerchantID:" + c.MerchantID + ", HashKey:[REDACTED], HashIV:[REDACTED]}"
}

// GoString keeps %#v from printing key material
func (c Credential) GoString() string {
	return c.String()
}

// MarshalJSON redacts the key material. Decoding still reads all three fields.
func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MerchantID string `json:"merchant_id"`
		HashKey    string `json:"hash_key"`
		HashIV     string `json:"hash_iv"`
	}{c.MerchantID, redacted, redacted})
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (c Credential) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("merchant_id", c.MerchantID)
	enc.AddString("hash_key", redacted)
	enc.AddString("hash_iv", redacted)
	return nil
}
