package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/tmalik/banking-core/internal/cache"
	"github.com/tmalik/banking-core/internal/db"
	"github.com/tmalik/banking-core/internal/models"
)

// JournalWriter appends completed movements to the audit journal.
type JournalWriter interface {
	Append(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
}

// EventPublisher pushes completed movements onto the event queue.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.TransactionEvent) error
}

// AccountSuspender suspends an account owner once the pin failure
// threshold is breached.
type AccountSuspender interface {
	SuspendAccount(ctx context.Context, ownerID, reason string) error
}

// inFlightTimeout bounds how long a fresh idempotency key stays locked
// while the original request executes.
const inFlightTimeout = 30 * time.Second

// Engine orchestrates transfers, deposits and withdrawals. Each
// operation is idempotent when the caller supplies a key, authenticates
// the source account pin where funds leave an account, and applies its
// balance mutations inside a single unit of work.
type Engine struct {
	accounts       *db.Postgres
	journal        JournalWriter
	idempotency    *cache.IdempotencyCache
	lockout        *cache.LockoutTracker
	events         EventPublisher
	users          AccountSuspender
	maxPinAttempts int64
}

func NewEngine(
	accounts *db.Postgres,
	journal JournalWriter,
	idempotency *cache.IdempotencyCache,
	lockout *cache.LockoutTracker,
	events EventPublisher,
	users AccountSuspender,
	maxPinAttempts int64,
) *Engine {
	return &Engine{
		accounts:       accounts,
		journal:        journal,
		idempotency:    idempotency,
		lockout:        lockout,
		events:         events,
		users:          users,
		maxPinAttempts: maxPinAttempts,
	}
}

// cachedResponse replays the stored payload for a previously seen
// idempotency key.
func (e *Engine) cachedResponse(ctx context.Context, key string) (*models.MovementResponse, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	payload, ok, err := e.idempotency.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	var resp models.MovementResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &resp, true, nil
}

// cacheResponse stores the success payload under the idempotency key so
// replays return identical bytes without re-executing the movement.
func (e *Engine) cacheResponse(ctx context.Context, key string, resp *models.MovementResponse) {
	if key == "" {
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		logrus.WithError(err).Error("failed to encode response for idempotency cache")
		return
	}
	if err := e.idempotency.Put(ctx, key, payload); err != nil {
		logrus.WithError(err).WithField("idempotency_key", key).Error("failed to cache response")
	}
}

// lockKey takes the in-flight lock for a fresh idempotency key. The
// returned release func is a no-op when no key was supplied.
func (e *Engine) lockKey(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return func() {}, nil
	}

	lock, err := e.idempotency.Acquire(ctx, key, inFlightTimeout)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, models.ErrDuplicateInFlight
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).WithField("idempotency_key", key).Warn("failed to release in-flight lock")
		}
	}, nil
}

// authenticatePin compares the supplied pin against the account's
// stored hash. A mismatch counts toward the lockout threshold; crossing
// it suspends the owner exactly once per breach before the locked error
// is surfaced.
func (e *Engine) authenticatePin(ctx context.Context, account *models.Account, pin string) error {
	if bcrypt.CompareHashAndPassword([]byte(account.PinHash), []byte(pin)) == nil {
		return nil
	}

	count, err := e.lockout.RecordFailure(ctx, account.OwnerID)
	if err != nil {
		return err
	}

	if count >= e.maxPinAttempts {
		if count == e.maxPinAttempts {
			reason := fmt.Sprintf("%d consecutive failed pin attempts", count)
			if err := e.users.SuspendAccount(ctx, account.OwnerID, reason); err != nil {
				logrus.WithError(err).WithField("owner_id", account.OwnerID).Error("failed to suspend account")
			}
		}
		return models.ErrAccountLocked
	}
	return models.ErrInvalidPin
}

// publish emits a movement event for out-of-band audit logging. The
// journal is the source of truth, so a publish failure never fails the
// movement.
func (e *Engine) publish(ctx context.Context, tx *models.Transaction) {
	event := &models.TransactionEvent{
		TransactionID: tx.ID,
		Source:        tx.Source,
		Destination:   tx.Destination,
		Type:          tx.Type,
		Amount:        tx.Amount,
		OccurredAt:    tx.CreatedAt,
	}
	if err := e.events.PublishEvent(ctx, event); err != nil {
		logrus.WithError(err).WithField("transaction_id", tx.ID).Warn("failed to publish transaction event")
	}
}

// Transfer moves funds between two internal accounts. The two balance
// mutations commit together or not at all.
func (e *Engine) Transfer(ctx context.Context, requesterID string, req *models.TransferRequest, idempotencyKey string) (*models.MovementResponse, error) {
	if resp, ok, err := e.cachedResponse(ctx, idempotencyKey); err != nil {
		return nil, err
	} else if ok {
		return resp, nil
	}

	release, err := e.lockKey(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer release()

	source, err := e.accounts.GetAccountByNumber(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	if _, err := e.accounts.GetAccountByNumber(ctx, req.Destination); err != nil {
		return nil, err
	}

	if req.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if req.Source == req.Destination {
		return nil, models.ErrSelfTransfer
	}
	if source.OwnerID != requesterID {
		return nil, models.ErrUnauthorized
	}
	if source.Balance < req.Amount {
		return nil, models.ErrInsufficientFunds
	}

	if err := e.authenticatePin(ctx, source, req.Pin); err != nil {
		return nil, err
	}

	tx, err := e.moveBetweenAccounts(ctx, req.Source, req.Destination, req.Amount)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, tx)

	resp := &models.MovementResponse{
		Source:      req.Source,
		Destination: req.Destination,
		Amount:      req.Amount,
		Success:     true,
	}
	e.cacheResponse(ctx, idempotencyKey, resp)
	return resp, nil
}

// moveBetweenAccounts debits the source and credits the destination
// inside one unit of work, then journals the committed transfer.
func (e *Engine) moveBetweenAccounts(ctx context.Context, sourceNumber, destNumber string, amount int64) (*models.Transaction, error) {
	uow, err := e.accounts.Begin(ctx)
	if err != nil {
		return nil, e.commitFailed(err, sourceNumber, destNumber)
	}
	defer func() {
		if uow != nil {
			_ = uow.Rollback()
		}
	}()

	// lock rows in a fixed order so two opposing transfers cannot
	// deadlock each other
	first, second := sourceNumber, destNumber
	if second < first {
		first, second = second, first
	}
	locked := map[string]*models.Account{}
	for _, number := range []string{first, second} {
		account, err := e.accounts.GetAccountForUpdate(ctx, uow, number)
		if err != nil {
			return nil, err
		}
		locked[number] = account
	}

	source, dest := locked[sourceNumber], locked[destNumber]

	// balance may have changed between the preliminary check and the
	// row lock
	if source.Balance < amount {
		return nil, models.ErrInsufficientFunds
	}

	debited := source.Balance - amount
	credited := dest.Balance + amount

	if _, err := e.accounts.UpdateAccount(ctx, uow, sourceNumber, models.AccountPatch{Balance: &debited}); err != nil {
		return nil, e.commitFailed(err, sourceNumber, destNumber)
	}
	if _, err := e.accounts.UpdateAccount(ctx, uow, destNumber, models.AccountPatch{Balance: &credited}); err != nil {
		return nil, e.commitFailed(err, sourceNumber, destNumber)
	}

	if err := uow.Commit(); err != nil {
		return nil, e.commitFailed(err, sourceNumber, destNumber)
	}
	uow = nil

	tx, err := e.journal.Append(ctx, &models.Transaction{
		Source:      sourceNumber,
		Destination: destNumber,
		Type:        models.Transfer,
		Amount:      amount,
	})
	if err != nil {
		return nil, e.commitFailed(err, sourceNumber, destNumber)
	}
	return tx, nil
}

// Deposit credits an account. Deposits carry no pin: they model credits
// originating outside the bank.
func (e *Engine) Deposit(ctx context.Context, req *models.DepositRequest, idempotencyKey string) (*models.MovementResponse, error) {
	if resp, ok, err := e.cachedResponse(ctx, idempotencyKey); err != nil {
		return nil, err
	} else if ok {
		return resp, nil
	}

	release, err := e.lockKey(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := e.accounts.GetAccountByNumber(ctx, req.Destination); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	tx, err := e.adjustBalance(ctx, req.Destination, req.Amount, models.Deposit, "")
	if err != nil {
		return nil, err
	}

	e.publish(ctx, tx)

	resp := &models.MovementResponse{
		Destination: req.Destination,
		Amount:      req.Amount,
		Success:     true,
	}
	e.cacheResponse(ctx, idempotencyKey, resp)
	return resp, nil
}

// Withdraw debits an account for an external cash-out. The bank
// metadata is passed through to the response without validation.
func (e *Engine) Withdraw(ctx context.Context, requesterID string, req *models.WithdrawalRequest, idempotencyKey string) (*models.MovementResponse, error) {
	if resp, ok, err := e.cachedResponse(ctx, idempotencyKey); err != nil {
		return nil, err
	} else if ok {
		return resp, nil
	}

	release, err := e.lockKey(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer release()

	source, err := e.accounts.GetAccountByNumber(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if source.OwnerID != requesterID {
		return nil, models.ErrUnauthorized
	}
	if source.Balance < req.Amount {
		return nil, models.ErrInsufficientFunds
	}

	if err := e.authenticatePin(ctx, source, req.Pin); err != nil {
		return nil, err
	}

	tx, err := e.adjustBalance(ctx, req.Source, -req.Amount, models.Withdrawal, req.BankAccountNumber)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, tx)

	resp := &models.MovementResponse{
		Source:            req.Source,
		Amount:            req.Amount,
		Success:           true,
		BankName:          req.BankName,
		BankAccountNumber: req.BankAccountNumber,
	}
	e.cacheResponse(ctx, idempotencyKey, resp)
	return resp, nil
}

// adjustBalance applies a single-account credit or debit inside its own
// unit of work and journals the committed movement.
func (e *Engine) adjustBalance(ctx context.Context, accountNumber string, delta int64, txType models.TransactionType, externalDestination string) (*models.Transaction, error) {
	uow, err := e.accounts.Begin(ctx)
	if err != nil {
		return nil, e.commitFailed(err, accountNumber)
	}
	defer func() {
		if uow != nil {
			_ = uow.Rollback()
		}
	}()

	account, err := e.accounts.GetAccountForUpdate(ctx, uow, accountNumber)
	if err != nil {
		return nil, err
	}

	updated := account.Balance + delta
	if updated < 0 {
		return nil, models.ErrInsufficientFunds
	}

	if _, err := e.accounts.UpdateAccount(ctx, uow, accountNumber, models.AccountPatch{Balance: &updated}); err != nil {
		return nil, e.commitFailed(err, accountNumber)
	}

	if err := uow.Commit(); err != nil {
		return nil, e.commitFailed(err, accountNumber)
	}
	uow = nil

	entry := &models.Transaction{
		Destination: accountNumber,
		Type:        txType,
		Amount:      delta,
	}
	if delta < 0 {
		entry.Amount = -delta
		entry.Source = accountNumber
		entry.Destination = externalDestination
	}

	tx, err := e.journal.Append(ctx, entry)
	if err != nil {
		return nil, e.commitFailed(err, accountNumber)
	}
	return tx, nil
}

// commitFailed logs a storage fault with the accounts involved and
// wraps it so callers can match on the storage commit error kind.
func (e *Engine) commitFailed(err error, accountNumbers ...string) error {
	logrus.WithError(err).WithField("accounts", accountNumbers).Error("storage fault during funds movement")
	return fmt.Errorf("%w: %v", models.ErrStorageCommit, err)
}
