package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Printendo/jose/internal/errors"
	"github.com/Printendo/jose/internal/logging"
	"github.com/Printendo/jose/internal/metrics"
)

// MinTransfer is the smallest transferable amount. Anything below it,
// negative amounts included, is rejected before touching the store.
var MinTransfer = decimal.RequireFromString("0.0009")

// Service validates ledger operations and drives the store. Validation that
// needs no database state happens here, fail fast; everything that depends
// on balances or existence is checked against row-locked reads inside the
// store's transaction.
type Service struct {
	store *Store
	log   *logging.Logger
}

// NewService builds the ledger engine.
func NewService(store *Store, log *logging.Logger) *Service {
	return &Service{store: store, log: log}
}

// CreateAccount creates an account of the given type. USER accounts get
// their wallet row in the same transaction.
func (s *Service) CreateAccount(ctx context.Context, accountID int64, accountType AccountType) (int64, error) {
	if !accountType.Valid() {
		return 0, errors.Input("unknown account type %d", int(accountType))
	}

	inserted, err := s.store.CreateAccount(ctx, accountID, accountType)
	if err != nil {
		return 0, err
	}

	s.log.WithField("account_id", accountID).WithField("type", accountType.String()).Info("account created")
	metrics.RecordAccountCreated(accountType.String())
	return inserted, nil
}

// GetWallet returns the merged account + wallet view.
func (s *Service) GetWallet(ctx context.Context, accountID int64) (*Wallet, error) {
	return s.store.GetWallet(ctx, accountID)
}

// Transfer moves amount between two distinct accounts. The returned balances
// are exact at commit time.
func (s *Service) Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (*TransferResult, error) {
	if receiverID == senderID {
		return nil, errors.Input("Account can not transfer to itself")
	}
	if amount.LessThan(MinTransfer) {
		return nil, errors.Input("Negative or too small amounts are not allowed")
	}

	start := time.Now()
	res, err := s.store.Transfer(ctx, senderID, receiverID, amount)
	if err != nil {
		metrics.RecordTransfer(string(errors.KindOf(err)), time.Since(start))
		return nil, err
	}

	s.log.WithField("sender", senderID).
		WithField("receiver", receiverID).
		WithField("amount", amount.String()).
		Info("transfer complete")
	metrics.RecordTransfer("ok", time.Since(start))
	return res, nil
}

// IncrementSteal bumps one of the wallet game counters. A missing wallet
// yields success=false, not an error; increments are intentionally not
// idempotent.
func (s *Service) IncrementSteal(ctx context.Context, userID int64, counter StealCounter) (bool, error) {
	matched, err := s.store.IncrementSteal(ctx, userID, counter)
	if err != nil {
		return false, err
	}
	if matched {
		metrics.RecordStealIncrement(string(counter))
	}
	return matched, nil
}
