package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of data keyed with key.
func Sign(key string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// checksumData builds the canonical string signed on checkout requests.
// Fields are ordered alphabetically by key.
func checksumData(amount int64, cancelURL, description string, orderCode int64, returnURL string) string {
	var b strings.Builder
	b.WriteString("amount=")
	b.WriteString(strconv.FormatInt(amount, 10))
	b.WriteString("&cancelUrl=")
	b.WriteString(cancelURL)
	b.WriteString("&description=")
	b.WriteString(description)
	b.WriteString("&orderCode=")
	b.WriteString(strconv.FormatInt(orderCode, 10))
	b.WriteString("&returnUrl=")
	b.WriteString(returnURL)
	return b.String()
}

// VerifyCallback checks a callback body against its hex signature.
func (c *Client) VerifyCallback(payload []byte, signature string) error {
	key := strings.TrimSpace(c.cfg.ChecksumKey)
	if key == "" {
		return ErrNotConfigured
	}
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return ErrSignatureMismatch
	}
	expected := Sign(key, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrSignatureMismatch
	}
	return nil
}
