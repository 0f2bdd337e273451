package models

import (
	"time"
)

type TransactionType string

const (
	// Deposit represents an externally-originated credit into an account
	Deposit TransactionType = "DEPOSIT"

	// Transfer represents a movement between two internal accounts
	Transfer TransactionType = "TRANSFER"

	// Withdrawal represents a debit routed out of the bank
	Withdrawal TransactionType = "WITHDRAWAL"
)

// Transaction is one journal entry for a completed money movement.
// Entries are written only after the balance mutation has committed and
// are never mutated afterwards.
type Transaction struct {
	ID          string          `json:"id" bson:"_id"`
	Source      string          `json:"source,omitempty" bson:"source,omitempty"`
	Destination string          `json:"destination" bson:"destination"`
	Type        TransactionType `json:"type" bson:"type"`
	Amount      int64           `json:"amount" bson:"amount"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
}

// TransferRequest is the validated DTO for a transfer between accounts.
type TransferRequest struct {
	Source      string `json:"source" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Pin         string `json:"pin" validate:"required,len=4,numeric"`
}

// DepositRequest is the validated DTO for a deposit. Deposits carry no
// pin: they model credits originating outside the bank.
type DepositRequest struct {
	Destination string `json:"destination" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
}

// WithdrawalRequest is the validated DTO for a withdrawal. The bank
// fields describe the external destination and are passed through to the
// response without validation against any real bank network.
type WithdrawalRequest struct {
	Source            string `json:"source" validate:"required"`
	Amount            int64  `json:"amount" validate:"required,gt=0"`
	Pin               string `json:"pin" validate:"required,len=4,numeric"`
	BankName          string `json:"bank_name,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
}

// MovementResponse is returned by every funds movement operation and
// cached verbatim under the request's idempotency key.
type MovementResponse struct {
	Source            string `json:"source,omitempty"`
	Destination       string `json:"destination,omitempty"`
	Amount            int64  `json:"amount"`
	Success           bool   `json:"success"`
	BankName          string `json:"bank_name,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
}

// TransactionEvent is published to the event queue after a movement
// commits, for out-of-band audit logging.
type TransactionEvent struct {
	TransactionID string          `json:"transaction_id"`
	Source        string          `json:"source,omitempty"`
	Destination   string          `json:"destination"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
