package ledger

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Printendo/jose/internal/errors"
)

// Store executes ledger mutations and reads against Postgres. Every mutation
// runs inside a single transaction; the store never leaves partial state
// behind.
type Store struct {
	db *sql.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const (
	// maxTransferAttempts bounds retries on serialization conflicts.
	maxTransferAttempts = 3
	retryBaseDelay      = 25 * time.Millisecond
)

// Postgres error codes worth special-casing.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// CreateAccount inserts the account row and, for USER accounts, its wallet
// row in one transaction. Returns the number of account rows inserted.
func (s *Store) CreateAccount(ctx context.Context, accountID int64, accountType AccountType) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create account: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (account_id, account_type)
		VALUES ($1, $2)
	`, accountID, int(accountType))
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return 0, errors.Exists("Account %d already exists", accountID)
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}
	inserted, _ := res.RowsAffected()

	if accountType == AccountUser {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (user_id)
			VALUES ($1)
		`, accountID); err != nil {
			return 0, fmt.Errorf("insert wallet: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create account: %w", err)
	}
	return inserted, nil
}

// GetWallet returns the account, merged with wallet fields for USER accounts.
func (s *Store) GetWallet(ctx context.Context, accountID int64) (*Wallet, error) {
	var (
		w        Wallet
		typ      int
		amount   decimal.Decimal
		infinite bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, account_type, amount, infinite
		FROM accounts
		WHERE account_id = $1
	`, accountID).Scan(&w.AccountID, &typ, &amount, &infinite)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("Account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	w.Type = AccountType(typ)
	w.Amount = Amount{Infinite: infinite, Value: amount}

	if w.Type != AccountUser {
		return &w, nil
	}

	var (
		taxpaid    decimal.Decimal
		uses, succ int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT taxpaid, steal_uses, steal_success
		FROM wallets
		WHERE user_id = $1
	`, accountID).Scan(&taxpaid, &uses, &succ)
	if stderrors.Is(err, sql.ErrNoRows) {
		// Paired insert guarantees this row; its absence is corruption,
		// not caller error.
		return nil, errors.Internal("wallet row missing for user account %d", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("select wallet: %w", err)
	}
	w.TaxPaid = &taxpaid
	w.StealUses = &uses
	w.StealSuccess = &succ
	return &w, nil
}

// Transfer moves amount from sender to receiver atomically. Existence and
// funds checks happen against row-locked reads inside the transaction, so
// they remain authoritative under concurrency. Serialization conflicts are
// retried a bounded number of times.
func (s *Store) Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (*TransferResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTransferAttempts; attempt++ {
		res, err := s.transferTx(ctx, senderID, receiverID, amount)
		if err == nil {
			return res, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBaseDelay):
		}
	}
	return nil, fmt.Errorf("transfer %d -> %d: retries exhausted: %w", senderID, receiverID, lastErr)
}

type lockedAccount struct {
	typ    AccountType
	amount Amount
}

func (s *Store) transferTx(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (*TransferResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback()

	// Lock both rows in ascending id order. Concurrent transfers sharing an
	// account then always acquire locks in the same order and cannot
	// deadlock each other.
	rows, err := tx.QueryContext(ctx, `
		SELECT account_id, account_type, amount, infinite
		FROM accounts
		WHERE account_id = $1 OR account_id = $2
		ORDER BY account_id
		FOR UPDATE
	`, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}

	accounts := make(map[int64]lockedAccount, 2)
	for rows.Next() {
		var (
			id       int64
			typ      int
			value    decimal.Decimal
			infinite bool
		)
		if err := rows.Scan(&id, &typ, &value, &infinite); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan locked account: %w", err)
		}
		accounts[id] = lockedAccount{
			typ:    AccountType(typ),
			amount: Amount{Infinite: infinite, Value: value},
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}

	sender, ok := accounts[senderID]
	if !ok {
		return nil, errors.NotFound("Sender is missing account")
	}
	receiver, ok := accounts[receiverID]
	if !ok {
		return nil, errors.NotFound("Receiver is missing account")
	}

	if !sender.amount.Covers(amount) {
		return nil, errors.Condition("Not enough funds: %s > %s", amount, sender.amount)
	}

	if !sender.amount.Infinite {
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET amount = amount - $1
			WHERE account_id = $2
		`, amount, senderID); err != nil {
			return nil, fmt.Errorf("debit sender: %w", err)
		}
	}

	if !receiver.amount.Infinite {
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET amount = amount + $1
			WHERE account_id = $2
		`, amount, receiverID); err != nil {
			return nil, fmt.Errorf("credit receiver: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (sender, receiver, amount)
		VALUES ($1, $2, $3)
	`, senderID, receiverID, amount); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}

	return &TransferResult{
		SenderAmount:   sender.amount.Sub(amount),
		ReceiverAmount: receiver.amount.Add(amount),
	}, nil
}

// IncrementSteal bumps the named wallet counter by one. The boolean reports
// whether a wallet row matched; false is an outcome, not an error.
func (s *Store) IncrementSteal(ctx context.Context, userID int64, counter StealCounter) (bool, error) {
	if !counter.Valid() {
		return false, errors.Input("unknown steal counter %q", counter)
	}

	// The counter value is whitelisted above; it is the column name and
	// cannot be a bind parameter.
	query := fmt.Sprintf(`
		UPDATE wallets
		SET %[1]s = %[1]s + 1
		WHERE user_id = $1
	`, counter)

	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("increment %s: %w", counter, err)
	}
	matched, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment %s: rows affected: %w", counter, err)
	}
	return matched > 0, nil
}

func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && string(pqErr.Code) == code
}

func isRetryable(err error) bool {
	return isPQCode(err, pqSerializationFailure) || isPQCode(err, pqDeadlockDetected)
}
