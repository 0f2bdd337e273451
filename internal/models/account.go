package models

import (
	"time"
)

// AccountNumberPrefix is prepended to every generated account number.
const AccountNumberPrefix = "21"

// Account represents a customer bank account. Balance is held in the
// smallest currency unit and must never go below zero.
type Account struct {
	ID            string    `json:"id" db:"id"`
	OwnerID       string    `json:"owner_id" db:"owner_id"`
	AccountNumber string    `json:"account_number" db:"account_number"`
	Balance       int64     `json:"balance" db:"balance"`
	PinHash       string    `json:"-" db:"pin_hash"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type CreateAccountRequest struct {
	Pin string `json:"pin" validate:"required,len=4,numeric"`
}

// AccountResponse is the outward shape of an account. The pin hash is
// never exposed.
type AccountResponse struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	AccountNumber string    `json:"account_number"`
	Balance       int64     `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccountPatch is a partial update applied by the account store. Nil
// fields are left untouched.
type AccountPatch struct {
	Balance *int64
	PinHash *string
}

func (a *Account) Response() AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		OwnerID:       a.OwnerID,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
		CreatedAt:     a.CreatedAt,
	}
}
