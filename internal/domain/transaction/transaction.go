package transaction

import (
	"github.com/shopspring/decimal"
)

// StatusSuccessful is the only record status that counts as paid.
const StatusSuccessful = "successful"

// Record is the processor's view of a transaction. It is fetched per
// reconciliation and untrusted until amount and currency are cross-checked.
type Record struct {
	ID                int64           `json:"id"`
	TxRef             string          `json:"tx_ref"`
	FlwRef            string          `json:"flw_ref"`
	Amount            decimal.Decimal `json:"amount"`
	ChargedAmount     decimal.Decimal `json:"charged_amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	ProcessorResponse string          `json:"processor_response"`
	PaymentType       string          `json:"payment_type"`
	Card              *Card           `json:"card,omitempty"`
	Customer          *Customer       `json:"customer,omitempty"`
}

// Card is the tokenisable credential metadata attached to card payments.
type Card struct {
	First6Digits string      `json:"first_6digits"`
	Last4Digits  string      `json:"last_4digits"`
	Issuer       string      `json:"issuer"`
	Type         string      `json:"type"`
	Expiry       string      `json:"expiry"`
	Token        string      `json:"token"`
	CardTokens   []CardToken `json:"card_tokens"`
}

type CardToken struct {
	EmbedToken string `json:"embedtoken"`
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Successful reports whether the processor marked the charge successful.
func (r *Record) Successful() bool {
	return r.Status == StatusSuccessful
}

// PaymentToken returns the reusable card token, preferring the first embed
// token. Empty when the payment was not made with a card.
func (r *Record) PaymentToken() string {
	if r.Card == nil {
		return ""
	}
	if len(r.Card.CardTokens) > 0 && r.Card.CardTokens[0].EmbedToken != "" {
		return r.Card.CardTokens[0].EmbedToken
	}
	return r.Card.Token
}

// FailureReason returns the processor's explanation or a placeholder.
func (r *Record) FailureReason() string {
	if r.ProcessorResponse == "" {
		return " - "
	}
	return r.ProcessorResponse
}
