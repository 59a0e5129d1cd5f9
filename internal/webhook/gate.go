// Package webhook authenticates inbound processor notifications before any
// part of the body is interpreted.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
)

const (
	// HeaderSecretHash carries the shared secret configured on the processor
	// dashboard.
	HeaderSecretHash = "verif-hash"
	// HeaderSignature carries base64(HMAC-SHA256(body)) in hmac mode.
	HeaderSignature = "flutterwave-signature"
)

// Mode selects how a webhook is authenticated.
type Mode string

const (
	ModeShared Mode = "shared"
	ModeHMAC   Mode = "hmac"
)

// ErrSignatureMissing is returned when the request carries no signature at
// all. It is still an authentication failure.
var ErrSignatureMissing = fmt.Errorf("%w: signature header missing", domainErrors.ErrUnauthenticated)

// Authenticate reports whether header is non-empty and equal to secret.
func Authenticate(header, secret string) bool {
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1
}

// Sign returns the hmac-mode signature of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Gate checks webhook requests. Shared mode keeps the processor's default
// scheme; hmac mode signs the body and is not compatible with senders that
// only know the shared secret.
type Gate struct {
	mode       Mode
	secretHash string
	hmacSecret string
}

func NewGate(cfg config.WebhookConfig) *Gate {
	mode := Mode(cfg.SignatureMode)
	if mode == "" {
		mode = ModeShared
	}
	return &Gate{
		mode:       mode,
		secretHash: cfg.SecretHash,
		hmacSecret: cfg.HMACSecret,
	}
}

func (g *Gate) Mode() Mode {
	return g.mode
}

// Verify returns nil for an authentic request, ErrSignatureMissing when the
// signature header is absent or empty, and ErrUnauthenticated otherwise.
func (g *Gate) Verify(h http.Header, body []byte) error {
	switch g.mode {
	case ModeHMAC:
		sig := h.Get(HeaderSignature)
		if sig == "" {
			return ErrSignatureMissing
		}
		if !hmac.Equal([]byte(sig), []byte(Sign(body, g.hmacSecret))) {
			return domainErrors.ErrUnauthenticated
		}
		return nil
	default:
		sig := h.Get(HeaderSecretHash)
		if sig == "" {
			return ErrSignatureMissing
		}
		if !Authenticate(sig, g.secretHash) {
			return domainErrors.ErrUnauthenticated
		}
		return nil
	}
}
