package checkout

import (
	"crypto/sha256"
	"encoding/hex"
)

// PayloadHash signs an initiation payload. The processor recomputes it from
// the same fields in the same order, so the order must not change.
func PayloadHash(amount, currency, email, txRef, secretKey string) string {
	secret := sha256.Sum256([]byte(secretKey))

	h := sha256.New()
	for _, field := range []string{amount, currency, email, txRef, hex.EncodeToString(secret[:])} {
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
