package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tmalik/banking-core/internal/models"
)

const userColumns = "id, first_name, last_name, email, phone_number, password_hash, role, is_active, created_at"

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// CreateUser registers a new user. Email and phone number are unique.
func (p *Postgres) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
	INSERT INTO users (id, first_name, last_name, email, phone_number, password_hash, role, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
	RETURNING ` + userColumns

	created, err := scanUser(p.db.QueryRowContext(
		ctx, query, uuid.New().String(), user.FirstName, user.LastName,
		user.Email, user.PhoneNumber, user.PasswordHash, user.Role, time.Now().UTC(),
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, models.ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

// GetUserByEmail retrieves a user by email.
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(p.db.QueryRowContext(ctx, query, email))
}

// GetUserByID retrieves a user by id.
func (p *Postgres) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(p.db.QueryRowContext(ctx, query, id))
}

// SetUserActive flips the active flag on a user record.
func (p *Postgres) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// ListUsers returns every registered user.
func (p *Postgres) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
