package webhook

import (
	"net/http"
	"testing"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
)

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{"match", "s3cr3t", "s3cr3t", true},
		{"mismatch", "s3cr3t", "other", false},
		{"empty header", "", "s3cr3t", false},
		{"both empty", "", "", false},
		{"prefix only", "s3c", "s3cr3t", false},
		{"case differs", "S3CR3T", "s3cr3t", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authenticate(tt.header, tt.secret))
		})
	}
}

func TestGate_SharedMode(t *testing.T) {
	g := NewGate(config.WebhookConfig{SecretHash: "s3cr3t"})
	assert.Equal(t, ModeShared, g.Mode())

	h := http.Header{}
	assert.ErrorIs(t, g.Verify(h, nil), ErrSignatureMissing)
	assert.ErrorIs(t, g.Verify(h, nil), domainErrors.ErrUnauthenticated)

	h.Set(HeaderSecretHash, "wrong")
	err := g.Verify(h, nil)
	assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
	assert.NotErrorIs(t, err, ErrSignatureMissing)

	h.Set(HeaderSecretHash, "s3cr3t")
	assert.NoError(t, g.Verify(h, []byte(`{"event":"charge.completed"}`)))
}

func TestGate_HMACMode(t *testing.T) {
	g := NewGate(config.WebhookConfig{SignatureMode: "hmac", HMACSecret: "k"})
	body := []byte(`{"event":"charge.completed","data":{"tx_ref":"WOOC_482_1710000000"}}`)

	h := http.Header{}
	assert.ErrorIs(t, g.Verify(h, body), ErrSignatureMissing)

	h.Set(HeaderSignature, Sign(body, "k"))
	assert.NoError(t, g.Verify(h, body))

	tampered := []byte(`{"event":"charge.completed","data":{"tx_ref":"WOOC_483_1710000000"}}`)
	assert.ErrorIs(t, g.Verify(h, tampered), domainErrors.ErrUnauthenticated)

	// The shared header means nothing in hmac mode.
	h2 := http.Header{}
	h2.Set(HeaderSecretHash, "k")
	assert.ErrorIs(t, g.Verify(h2, body), ErrSignatureMissing)
}
