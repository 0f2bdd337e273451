package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tmalik/banking-core/internal/models"
)

// pq error code for unique constraint violations
const uniqueViolation = "23505"

// account numbers sometimes collide; regeneration is bounded so a
// pathological random stream cannot loop forever
const maxNumberAttempts = 5

// generateAccountNumber returns the prefix "21" followed by an 8-digit
// number drawn uniformly from [10000000, 99999999].
func generateAccountNumber() string {
	n := rand.Int64N(90000000) + 10000000
	return fmt.Sprintf("%s%d", models.AccountNumberPrefix, n)
}

const accountColumns = "id, owner_id, account_number, balance, pin_hash, created_at, updated_at"

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.Balance, &a.PinHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// CreateAccount opens an account for the owner. Creation is idempotent
// on the owner: if an account already exists it is returned unchanged.
// A fresh account number is regenerated on collision, up to a bound.
func (p *Postgres) CreateAccount(ctx context.Context, ownerID, pinHash string) (*models.Account, error) {
	existing, err := p.GetAccountByOwner(ctx, ownerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrAccountNotFound) {
		return nil, err
	}

	query := `
	INSERT INTO accounts (id, owner_id, account_number, balance, pin_hash, created_at, updated_at)
	VALUES ($1, $2, $3, 0, $4, $5, $5)
	RETURNING ` + accountColumns

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number := generateAccountNumber()
		now := time.Now().UTC()

		account, err := scanAccount(p.db.QueryRowContext(
			ctx, query, uuid.New().String(), ownerID, number, pinHash, now,
		))
		if err == nil {
			return account, nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			if strings.Contains(pqErr.Constraint, "owner") {
				// lost a race with a concurrent create for the same owner
				return p.GetAccountByOwner(ctx, ownerID)
			}
			continue // account number collision, regenerate
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return nil, fmt.Errorf("failed to allocate a unique account number after %d attempts", maxNumberAttempts)
}

// GetAccountByNumber retrieves an account by its account number.
func (p *Postgres) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(p.db.QueryRowContext(ctx, query, accountNumber))
}

// GetAccountByOwner retrieves the account owned by the given user.
func (p *Postgres) GetAccountByOwner(ctx context.Context, ownerID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1`
	return scanAccount(p.db.QueryRowContext(ctx, query, ownerID))
}

// GetAccountForUpdate loads an account inside the unit of work with a
// row lock, serializing concurrent writers touching the same account.
func (p *Postgres) GetAccountForUpdate(ctx context.Context, uow *UnitOfWork, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 FOR UPDATE`
	return scanAccount(p.scope(uow).QueryRowContext(ctx, query, accountNumber))
}

// UpdateAccount applies a partial update. When a unit of work is passed
// in, the update joins its atomicity scope instead of committing on its
// own.
func (p *Postgres) UpdateAccount(ctx context.Context, uow *UnitOfWork, accountNumber string, patch models.AccountPatch) (*models.Account, error) {
	sets := []string{"updated_at = $1"}
	args := []interface{}{time.Now().UTC()}

	if patch.Balance != nil {
		if *patch.Balance < 0 {
			return nil, models.ErrInsufficientFunds
		}
		args = append(args, *patch.Balance)
		sets = append(sets, fmt.Sprintf("balance = $%d", len(args)))
	}
	if patch.PinHash != nil {
		args = append(args, *patch.PinHash)
		sets = append(sets, fmt.Sprintf("pin_hash = $%d", len(args)))
	}

	args = append(args, accountNumber)
	query := fmt.Sprintf(
		"UPDATE accounts SET %s WHERE account_number = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), accountColumns,
	)

	return scanAccount(p.scope(uow).QueryRowContext(ctx, query, args...))
}

// ListAccounts returns every account. Authorization is the caller's
// concern.
func (p *Postgres) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.Balance, &a.PinHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}
