package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"moodspend/internal/core"
)

// TransactionCreatedMessage announces a stored transaction. Consumers that
// need more than the summary fetch the row by id.
type TransactionCreatedMessage struct {
	ID           int64     `json:"id"`
	RecurrenceID *int64    `json:"recurrence_id,omitempty"`
	AmountCents  int64     `json:"amount_cents"`
	Date         string    `json:"date"`
	Kind         string    `json:"kind"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewTransactionCreatedMessage summarizes tx. tx.ID must already be set.
func NewTransactionCreatedMessage(tx core.Transaction) *TransactionCreatedMessage {
	return &TransactionCreatedMessage{
		ID:           tx.ID,
		RecurrenceID: tx.RecurrenceID,
		AmountCents:  tx.Amount.Cents,
		Date:         core.DateOf(tx.Date).String(),
		Kind:         string(tx.Kind),
		Timestamp:    time.Now(),
	}
}

func (m *TransactionCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionCreatedMessageFromJSON(data []byte) (*TransactionCreatedMessage, error) {
	var msg TransactionCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ProcessTriggerMessage asks the recurring worker to run a pass now.
type ProcessTriggerMessage struct {
	ID          string    `json:"id"`
	RequestedBy string    `json:"requested_by"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewProcessTriggerMessage(requestedBy string) *ProcessTriggerMessage {
	return &ProcessTriggerMessage{
		ID:          uuid.NewString(),
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

func (m *ProcessTriggerMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ProcessTriggerMessageFromJSON(data []byte) (*ProcessTriggerMessage, error) {
	var msg ProcessTriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
