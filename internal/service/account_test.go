package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmalik/banking-core/internal/db"
	"github.com/tmalik/banking-core/internal/models"
)

func newAccountService(t *testing.T) (*AccountService, sqlmock.Sqlmock, *fakeJournal) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	journal := &fakeJournal{}
	return NewAccountService(db.NewPostgresWithDB(conn), journal), mock, journal
}

func serviceAccountRow(number, owner string, balance int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(accountCols).
		AddRow("acc-"+number, owner, number, balance, "stored-hash", now, now)
}

func TestCreateAccount_OpensWithZeroBalance(t *testing.T) {
	svc, mock, _ := newAccountService(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs(ownerID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO accounts").
		WillReturnRows(serviceAccountRow(sourceNum, ownerID, 0))

	account, err := svc.CreateAccount(context.Background(), ownerID, "1234")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_SecondRequestReturnsExisting(t *testing.T) {
	svc, mock, _ := newAccountService(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs(ownerID).
		WillReturnRows(serviceAccountRow(sourceNum, ownerID, 320))

	account, err := svc.CreateAccount(context.Background(), ownerID, "1234")
	require.NoError(t, err)
	assert.Equal(t, int64(320), account.Balance)
	assert.NoError(t, mock.ExpectationsWereMet(), "no insert may happen")
}

func TestChangePin(t *testing.T) {
	svc, mock, _ := newAccountService(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs(ownerID).
		WillReturnRows(serviceAccountRow(sourceNum, ownerID, 500))
	mock.ExpectQuery("UPDATE accounts SET").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sourceNum).
		WillReturnRows(serviceAccountRow(sourceNum, ownerID, 500))

	_, err := svc.ChangePin(context.Background(), ownerID, "4321")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMyTransactions(t *testing.T) {
	svc, mock, journal := newAccountService(t)

	journal.entries = []*models.Transaction{
		{ID: "tx-1", Source: sourceNum, Destination: destNum, Type: models.Transfer, Amount: 100},
	}

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id").
		WithArgs(ownerID).
		WillReturnRows(serviceAccountRow(sourceNum, ownerID, 400))

	txs, err := svc.GetMyTransactions(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-1", txs[0].ID)
}
