package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmalik/banking-core/internal/models"
)

var accountCols = []string{"id", "owner_id", "account_number", "balance", "pin_hash", "created_at", "updated_at"}

func accountRow(id, ownerID, number string, balance int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(accountCols).AddRow(id, ownerID, number, balance, "hash", now, now)
}

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewPostgresWithDB(conn), mock
}

func TestGenerateAccountNumber(t *testing.T) {
	for i := 0; i < 100; i++ {
		number := generateAccountNumber()
		assert.Len(t, number, 10)
		assert.True(t, strings.HasPrefix(number, models.AccountNumberPrefix))

		suffix, err := strconv.Atoi(number[2:])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, suffix, 10000000)
		assert.LessOrEqual(t, suffix, 99999999)
	}
}

func TestCreateAccount_New(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs("owner-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO accounts").
		WillReturnRows(accountRow("acc-1", "owner-1", "2112345678", 0))

	account, err := store.CreateAccount(context.Background(), "owner-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", account.OwnerID)
	assert.Equal(t, int64(0), account.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_ReturnsExistingForOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs("owner-1").
		WillReturnRows(accountRow("acc-1", "owner-1", "2112345678", 750))

	account, err := store.CreateAccount(context.Background(), "owner-1", "other-hash")
	require.NoError(t, err)
	assert.Equal(t, "2112345678", account.AccountNumber)
	assert.Equal(t, int64(750), account.Balance, "existing account must be returned unchanged")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_RegeneratesNumberOnCollision(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs("owner-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO accounts").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "accounts_account_number_key"})
	mock.ExpectQuery("INSERT INTO accounts").
		WillReturnRows(accountRow("acc-1", "owner-1", "2187654321", 0))

	account, err := store.CreateAccount(context.Background(), "owner-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, "2187654321", account.AccountNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_ConcurrentOwnerRace(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs("owner-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO accounts").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "accounts_owner_id_key"})
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs("owner-1").
		WillReturnRows(accountRow("acc-1", "owner-1", "2112345678", 0))

	account, err := store.CreateAccount(context.Background(), "owner-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountByNumber_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE account_number").
		WithArgs("2100000009").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetAccountByNumber(context.Background(), "2100000009")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestUpdateAccount_BalancePatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE accounts SET").
		WithArgs(sqlmock.AnyArg(), int64(400), "2100000001").
		WillReturnRows(accountRow("acc-1", "owner-1", "2100000001", 400))

	balance := int64(400)
	account, err := store.UpdateAccount(context.Background(), nil, "2100000001", models.AccountPatch{Balance: &balance})
	require.NoError(t, err)
	assert.Equal(t, int64(400), account.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAccount_RejectsNegativeBalance(t *testing.T) {
	store, _ := newMockStore(t)

	balance := int64(-1)
	_, err := store.UpdateAccount(context.Background(), nil, "2100000001", models.AccountPatch{Balance: &balance})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestUpdateAccount_JoinsUnitOfWork(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE accounts SET").
		WithArgs(sqlmock.AnyArg(), int64(100), "2100000001").
		WillReturnRows(accountRow("acc-1", "owner-1", "2100000001", 100))
	mock.ExpectRollback()

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)

	balance := int64(100)
	_, err = store.UpdateAccount(context.Background(), uow, "2100000001", models.AccountPatch{Balance: &balance})
	require.NoError(t, err)

	require.NoError(t, uow.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
