package invitations

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// newToken returns an unguessable URL-safe invitation token from 32 random
// bytes.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
