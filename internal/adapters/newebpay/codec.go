package newebpay

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"go.uber.org/zap"
)

// maxPadLength is the largest trailing pad length accepted by lenient unpadding
const maxPadLength = 32

// Codec encrypts, decrypts, signs and verifies gateway payloads with the merchant credential.
// Safe for concurrent use.
type Codec struct {
	block  cipher.Block
	iv     []byte
	cred   domain.Credential
	logger *zap.Logger
}

// NewCodec validates the credential and prepares the AES-256 cipher
func NewCodec(cred domain.Credential, logger *zap.Logger) (*Codec, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher([]byte(cred.HashKey))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInvalidCredential, "failed to initialize cipher", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Codec{
		block:  block,
		iv:     []byte(cred.HashIV),
		cred:   cred,
		logger: logger,
	}, nil
}

// MerchantID returns the merchant the codec signs for
func (c *Codec) MerchantID() string {
	return c.cred.MerchantID
}

// EncryptPayload encrypts plaintext with AES-256-CBC and PKCS#7 padding, returning lowercase hex
func (c *Codec) EncryptPayload(plaintext string) string {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return hex.EncodeToString(out)
}

// DecryptPayload reverses EncryptPayload. Padding is validated leniently: when the
// trailing bytes do not form a valid pad, the raw plaintext is returned with
// control characters removed instead of failing.
func (c *Codec) DecryptPayload(hexCiphertext string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexCiphertext))
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeDecoding, "payload is not valid hex", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", domain.NewDomainError(domain.ErrorCodeDecoding, "ciphertext length is not a multiple of the block size").
			WithDetail("length", len(raw))
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)

	if unpadded, ok := lenientUnpad(out); ok {
		return string(unpadded), nil
	}

	observability.RecordLenientUnpad()
	c.logger.Warn("Decrypted payload has invalid padding, falling back to control character stripping",
		zap.Int("ciphertext_length", len(raw)),
		zap.Uint8("trailing_byte", out[len(out)-1]),
	)
	return stripControlChars(string(out)), nil
}

// SignPayload computes the TradeSha/HashData digest over an encrypted payload.
// This is a plain SHA-256 of the wrapped string, not an HMAC.
func (c *Codec) SignPayload(hexCiphertext string) string {
	return sha256Upper("HashKey=" + c.cred.HashKey + "&" + hexCiphertext + "&HashIV=" + c.cred.HashIV)
}

// VerifySignature recomputes the digest and compares it in constant time.
// The comparison is case-sensitive; the gateway always sends uppercase.
func (c *Codec) VerifySignature(hexCiphertext, claimed string) bool {
	expected := c.SignPayload(hexCiphertext)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}

// OpenEnvelope verifies and decrypts a payload received from the gateway
func (c *Codec) OpenEnvelope(hexCiphertext, claimed string) (string, error) {
	if hexCiphertext == "" {
		return "", domain.WrapError(domain.ErrorCodeValidationMissingField, "encrypted payload is empty", nil)
	}
	if !c.VerifySignature(hexCiphertext, claimed) {
		observability.RecordSignatureFailure("trade_sha")
		return "", domain.WrapError(domain.ErrorCodeSignatureMismatch, "trade sha does not match payload", nil)
	}
	return c.DecryptPayload(hexCiphertext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// lenientUnpad strips a trailing pad when every pad byte agrees with the pad length
func lenientUnpad(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return data, false
	}
	p := int(data[len(data)-1])
	if p < 1 || p > maxPadLength || p > len(data) {
		return data, false
	}
	for _, b := range data[len(data)-p:] {
		if int(b) != p {
			return data, false
		}
	}
	return data[:len(data)-p], true
}

// stripControlChars removes C0 and C1 control characters and DEL
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1F || (r >= 0x7F && r <= 0x9F) {
			return -1
		}
		return r
	}, s)
}

func sha256Upper(s string) string {
	sum := sha256.Sum256([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
