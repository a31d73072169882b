package helpers

import (
	"crypto/rand"
	"encoding/base64"
)

// WidgetKeyBytes is the entropy of a widget public key. 24 random bytes give
// 192 bits, well past infeasible to guess or enumerate.
const WidgetKeyBytes = 24

// NewOpaqueToken returns n random bytes encoded URL-safe without padding.
func NewOpaqueToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewWidgetKey returns an opaque public key for a widget. The key carries no
// relation to the widget's numeric id or owner.
func NewWidgetKey() (string, error) {
	return NewOpaqueToken(WidgetKeyBytes)
}
