package paystack

import "encoding/json"

// Transaction statuses reported by the gateway.
const (
	TransactionSuccess   = "success"
	TransactionFailed    = "failed"
	TransactionAbandoned = "abandoned"
)

// Customer is the payer as recorded by the gateway.
type Customer struct {
	Email string `json:"email"`
}

// Transaction is the data object of a verify response.
type Transaction struct {
	ID              int64    `json:"id"`
	Status          string   `json:"status"`
	Reference       string   `json:"reference"`
	Amount          int64    `json:"amount"`
	Currency        string   `json:"currency"`
	GatewayResponse string   `json:"gateway_response"`
	PaidAt          string   `json:"paid_at,omitempty"`
	Channel         string   `json:"channel,omitempty"`
	Customer        Customer `json:"customer"`
}

// Verification is the decoded verify response. Raw keeps the data object exactly as received.
type Verification struct {
	Status      bool
	Message     string
	Transaction Transaction
	Raw         json.RawMessage
}

// InitializeRequest starts a hosted payment.
type InitializeRequest struct {
	Email     string `json:"email"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	Reference string `json:"reference"`
}

// Authorization is where the payer completes an initialized payment.
type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}
