package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmalik/banking-core/internal/models"
)

var userCols = []string{"id", "first_name", "last_name", "email", "phone_number", "password_hash", "role", "is_active", "created_at"}

func userRow(id, email string) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(id, "Ada", "Obi", email, "+2348000000000", "hash", "REGULAR", true, time.Now())
}

func TestCreateUser_Success(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(userRow("user-1", "ada@example.com"))

	user, err := store.CreateUser(context.Background(), &models.User{
		FirstName:    "Ada",
		LastName:     "Obi",
		Email:        "ada@example.com",
		PhoneNumber:  "+2348000000000",
		PasswordHash: "hash",
		Role:         models.RoleRegular,
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.True(t, user.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Duplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "users_email_key"})

	_, err := store.CreateUser(context.Background(), &models.User{Email: "ada@example.com"})
	assert.ErrorIs(t, err, models.ErrDuplicateUser)
}

func TestSetUserActive(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE users SET is_active").
		WithArgs(false, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SetUserActive(context.Background(), "user-1", false)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserActive_UnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE users SET is_active").
		WithArgs(false, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetUserActive(context.Background(), "ghost", false)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
