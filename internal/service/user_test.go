package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tmalik/banking-core/internal/db"
	"github.com/tmalik/banking-core/internal/models"
)

var userCols = []string{"id", "first_name", "last_name", "email", "phone_number", "password_hash", "role", "is_active", "created_at"}

func newUserService(t *testing.T) (*UserService, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewUserService(db.NewPostgresWithDB(conn), "test-secret", time.Hour), mock
}

func TestRegister_PasswordMismatch(t *testing.T) {
	svc, _ := newUserService(t)

	_, err := svc.Register(context.Background(), &models.RegisterRequest{
		Email:           "ada@example.com",
		Password:        "password123",
		ConfirmPassword: "different",
	})
	assert.ErrorIs(t, err, models.ErrPasswordMatch)
}

func TestRegister_HashesPassword(t *testing.T) {
	svc, mock := newUserService(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "Ada", "Obi", "ada@example.com", "+2348000000000", "hash", "REGULAR", true, time.Now()))

	user, err := svc.Register(context.Background(), &models.RegisterRequest{
		FirstName:       "Ada",
		LastName:        "Obi",
		Email:           "ada@example.com",
		PhoneNumber:     "+2348000000000",
		Password:        "password123",
		ConfirmPassword: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleRegular, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	svc, mock := newUserService(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "Ada", "Obi", "ada@example.com", "+2348000000000", string(hash), "ADMIN", true, time.Now()))

	token, err := svc.Login(context.Background(), "ada@example.com", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, role, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, models.RoleAdmin, role)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, mock := newUserService(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "Ada", "Obi", "ada@example.com", "+2348000000000", string(hash), "REGULAR", true, time.Now()))

	_, err = svc.Login(context.Background(), "ada@example.com", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, mock := newUserService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Login(context.Background(), "ghost@example.com", "password123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestVerifyToken_RejectsGarbage(t *testing.T) {
	svc, _ := newUserService(t)

	_, _, err := svc.VerifyToken("not-a-token")
	assert.Error(t, err)
}

func TestSuspendAccount(t *testing.T) {
	svc, mock := newUserService(t)

	mock.ExpectExec("UPDATE users SET is_active").
		WithArgs(false, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.SuspendAccount(context.Background(), "user-1", "5 consecutive failed pin attempts")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
