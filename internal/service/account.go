package service

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tmalik/banking-core/internal/db"
	"github.com/tmalik/banking-core/internal/models"
)

// bcryptCost matches the cost used for user passwords.
const bcryptCost = 10

// JournalReader reads completed movements back out of the journal.
type JournalReader interface {
	GetByAccountNumber(ctx context.Context, accountNumber string) ([]*models.Transaction, error)
	ListAll(ctx context.Context) ([]*models.Transaction, error)
}

// AccountService manages account opening and reads.
type AccountService struct {
	store   *db.Postgres
	journal JournalReader
}

func NewAccountService(store *db.Postgres, journal JournalReader) *AccountService {
	return &AccountService{
		store:   store,
		journal: journal,
	}
}

// CreateAccount opens an account for the owner with a hashed pin and a
// zero balance. A second request for the same owner returns the
// existing account unchanged.
func (s *AccountService) CreateAccount(ctx context.Context, ownerID, pin string) (*models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash pin: %w", err)
	}

	account, err := s.store.CreateAccount(ctx, ownerID, string(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetAccountByNumber retrieves an account by its account number.
func (s *AccountService) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	return s.store.GetAccountByNumber(ctx, accountNumber)
}

// GetAccountByOwner retrieves the requester's own account.
func (s *AccountService) GetAccountByOwner(ctx context.Context, ownerID string) (*models.Account, error) {
	return s.store.GetAccountByOwner(ctx, ownerID)
}

// ListAccounts returns every account. Admin only; authorization happens
// in the HTTP layer.
func (s *AccountService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.store.ListAccounts(ctx)
}

// ChangePin replaces the pin on the owner's account with a fresh hash.
func (s *AccountService) ChangePin(ctx context.Context, ownerID, newPin string) (*models.Account, error) {
	account, err := s.store.GetAccountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPin), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash pin: %w", err)
	}

	hashStr := string(hash)
	return s.store.UpdateAccount(ctx, nil, account.AccountNumber, models.AccountPatch{PinHash: &hashStr})
}

// GetMyTransactions returns the journal entries touching the owner's
// account, as source or destination.
func (s *AccountService) GetMyTransactions(ctx context.Context, ownerID string) ([]*models.Transaction, error) {
	account, err := s.store.GetAccountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.journal.GetByAccountNumber(ctx, account.AccountNumber)
}

// ListTransactions returns every journal entry. Admin only.
func (s *AccountService) ListTransactions(ctx context.Context) ([]*models.Transaction, error) {
	return s.journal.ListAll(ctx)
}
