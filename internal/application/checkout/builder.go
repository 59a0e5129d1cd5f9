package checkout

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/txref"
	"github.com/go-playground/validator/v10"
)

type Customer struct {
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

type Meta struct {
	ConsumerID int64  `json:"consumer_id"`
	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user-agent"`
}

type Customizations struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Payload is the body of POST /v3/payments.
type Payload struct {
	Amount         json.Number    `json:"amount" validate:"required"`
	TxRef          string         `json:"tx_ref" validate:"required"`
	Currency       string         `json:"currency" validate:"required,len=3"`
	PaymentOptions string         `json:"payment_options"`
	RedirectURL    string         `json:"redirect_url" validate:"required,url"`
	PayloadHash    string         `json:"payload_hash" validate:"required,len=64"`
	Customer       Customer       `json:"customer"`
	Meta           Meta           `json:"meta"`
	Customizations Customizations `json:"customizations"`
}

// BuilderConfig is the store-wide part of every payload.
type BuilderConfig struct {
	NotifyURL      string
	PaymentOptions string
	Title          string
	Description    string
	TestReference  bool
	// Disabled refuses every checkout while the gateway is switched off.
	Disabled bool
}

// RequestBuilder turns an order into a signed initiation payload. It has no
// side effects; the caller persists the reference.
type RequestBuilder struct {
	cfg      BuilderConfig
	now      func() time.Time
	validate *validator.Validate
}

func NewRequestBuilder(cfg BuilderConfig) *RequestBuilder {
	return &RequestBuilder{
		cfg:      cfg,
		now:      time.Now,
		validate: validator.New(),
	}
}

// Prepare builds the payload for o. A disabled gateway or an empty secretKey
// yields a *ConfigurationError.
func (b *RequestBuilder) Prepare(o *order.Order, secretKey string) (*Payload, error) {
	if b.cfg.Disabled {
		return nil, domainErrors.NewConfigurationError("processor.enabled",
			"This payment method is currently disabled.")
	}
	if secretKey == "" {
		return nil, domainErrors.NewConfigurationError("processor.secret_key",
			"This payment method is currently unavailable as the administrator is yet to configure it. Please contact the administrator for more information.")
	}

	ref := txref.New(o.ID, b.now())
	if b.cfg.TestReference {
		ref = txref.NewTest(o.ID)
	}

	redirect, err := b.redirectURL(o.ID)
	if err != nil {
		return nil, domainErrors.NewConfigurationError("reconcile.notify_url", err.Error())
	}

	amount := o.Total.StringFixed(2)
	p := &Payload{
		Amount:         json.Number(amount),
		TxRef:          ref,
		Currency:       o.Currency,
		PaymentOptions: b.cfg.PaymentOptions,
		RedirectURL:    redirect,
		PayloadHash:    PayloadHash(amount, o.Currency, o.Billing.Email, ref, secretKey),
		Customer: Customer{
			Email:       o.Billing.Email,
			PhoneNumber: o.Billing.Phone,
			Name:        o.BillingName(),
		},
		Meta: Meta{
			ConsumerID: o.CustomerID,
			IPAddress:  o.CustomerIP,
			UserAgent:  o.CustomerUserAgent,
		},
		Customizations: Customizations{
			Title:       b.cfg.Title,
			Description: b.cfg.Description + " " + o.Number(),
		},
	}

	if err := b.validate.Struct(p); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return nil, domainErrors.NewValidationError(ve[0].Field(), fmt.Sprintf("failed on '%s'", ve[0].Tag()))
		}
		return nil, err
	}
	return p, nil
}

func (b *RequestBuilder) redirectURL(orderID int64) (string, error) {
	u, err := url.Parse(b.cfg.NotifyURL)
	if err != nil {
		return "", fmt.Errorf("parse notify url: %w", err)
	}
	q := u.Query()
	q.Set("order_id", strconv.FormatInt(orderID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WithNonce appends the return nonce to the payload's redirect URL.
func (p *Payload) WithNonce(nonce string) error {
	u, err := url.Parse(p.RedirectURL)
	if err != nil {
		return fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	q.Set("nonce", nonce)
	u.RawQuery = q.Encode()
	p.RedirectURL = u.String()
	return nil
}
