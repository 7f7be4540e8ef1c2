package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Printendo/jose/internal/errors"
	"github.com/Printendo/jose/internal/logging"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	store, mock := newMockStore(t)
	return NewService(store, logging.Discard()), mock
}

func TestTransferRejectsSelfTransfer(t *testing.T) {
	svc, mock := newMockService(t)

	_, err := svc.Transfer(context.Background(), 1, 1, dec(t, "1000000"))
	if !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	if err.Error() != "Account can not transfer to itself" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	// The store must never be reached.
	expectationsMet(t, mock)
}

func TestTransferRejectsSubMinimumAmount(t *testing.T) {
	svc, mock := newMockService(t)

	for _, raw := range []string{"0.0005", "0", "-1"} {
		_, err := svc.Transfer(context.Background(), 1, 2, dec(t, raw))
		if !errors.IsKind(err, errors.KindInput) {
			t.Fatalf("amount %s: expected input error, got %v", raw, err)
		}
	}
	expectationsMet(t, mock)
}

func TestTransferAcceptsMinimumAmount(t *testing.T) {
	svc, mock := newMockService(t)
	amount := dec(t, "0.0009")

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(lockedRows(
			[]driverValue{int64(1), 0, "1", false},
			[]driverValue{int64(2), 0, "0", false},
		))
	mock.ExpectExec("SET amount = amount - ").
		WithArgs(amount, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET amount = amount \\+ ").
		WithArgs(amount, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(int64(1), int64(2), amount).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := svc.Transfer(context.Background(), 1, 2, amount)
	if err != nil {
		t.Fatalf("transfer at minimum amount: %v", err)
	}
	if res.SenderAmount.String() != "0.9991" {
		t.Fatalf("expected sender 0.9991, got %s", res.SenderAmount)
	}
	expectationsMet(t, mock)
}

func TestCreateAccountRejectsUnknownType(t *testing.T) {
	svc, mock := newMockService(t)

	_, err := svc.CreateAccount(context.Background(), 1, AccountType(7))
	if !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	expectationsMet(t, mock)
}
