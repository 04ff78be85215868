package domain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCredential = Credential{
	MerchantID: "MS123",
	HashKey:    "12345678901234567890123456789012",
	HashIV:     "1234567890123456",
}

func TestCredential_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Credential)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Credential) {}},
		{name: "missing merchant", mutate: func(c *Credential) { c.MerchantID = "" }, wantErr: true},
		{name: "short key", mutate: func(c *Credential) { c.HashKey = "short" }, wantErr: true},
		{name: "long iv", mutate: func(c *Credential) { c.HashIV += "x" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCredential
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.True(t, IsDomainError(err, ErrorCodeInvalidCredential))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCredential_NeverPrintsKeyMaterial(t *testing.T) {
	raw, err := json.Marshal(testCredential)
	require.NoError(t, err)

	outputs := map[string]string{
		"json":    string(raw),
		"%v":      fmt.Sprintf("%v", testCredential),
		"%+v":     fmt.Sprintf("%+v", testCredential),
		"%#v":     fmt.Sprintf("%#v", testCredential),
		"pointer": fmt.Sprintf("%v", &testCredential),
	}
	for name, out := range outputs {
		t.Run(name, func(t *testing.T) {
			assert.Contains(t, out, "MS123")
			assert.NotContains(t, out, testCredential.HashKey)
			assert.NotContains(t, out, testCredential.HashIV)
		})
	}
}

func TestCredential_UnmarshalReadsSecrets(t *testing.T) {
	var c Credential
	require.NoError(t, json.Unmarshal([]byte(`{"merchant_id":"MS123","hash_key":"12345678901234567890123456789012","hash_iv":"1234567890123456"}`), &c))
	assert.Equal(t, testCredential, c)
}
