package idempotency

// Status values for reference guard entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the payment reference DynamoDB table.
type Record struct {
	Reference      string `dynamodbav:"idempotency_key"` // PK: the payment reference
	Status         string `dynamodbav:"status"`
	UserID         string `dynamodbav:"user_id,omitempty"`
	OrderID        string `dynamodbav:"order_id,omitempty"`
	ResponseBody   string `dynamodbav:"response_body,omitempty"`   // JSON of the verification result
	ResponseStatus int    `dynamodbav:"response_status,omitempty"` // e.g., 200
	CreatedAt      string `dynamodbav:"created_at"`
	UpdatedAt      string `dynamodbav:"updated_at"` // fixed-width UTC, compared lexically by Reclaim
	ExpiresAt      int64  `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string `dynamodbav:"note,omitempty"`
}
