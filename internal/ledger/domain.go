// Package ledger implements the josécoin ledger engine: account creation,
// wallet reads, atomic transfers and the steal counters.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountType distinguishes user wallets from taxbank accounts. The numeric
// values are part of the wire format.
type AccountType int

const (
	AccountUser    AccountType = 0
	AccountTaxbank AccountType = 1
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	return t == AccountUser || t == AccountTaxbank
}

func (t AccountType) String() string {
	switch t {
	case AccountUser:
		return "user"
	case AccountTaxbank:
		return "taxbank"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Amount is a ledger balance: either an exact decimal or the unbounded
// sentinel used by system accounts. The sentinel is a tag, never a magic
// numeric value, so it cannot leak into sums.
type Amount struct {
	Infinite bool
	Value    decimal.Decimal
}

// NewAmount wraps a finite decimal value.
func NewAmount(v decimal.Decimal) Amount {
	return Amount{Value: v}
}

// InfiniteAmount returns the unbounded sentinel.
func InfiniteAmount() Amount {
	return Amount{Infinite: true}
}

// Covers reports whether a balance of a can pay v. An infinite balance
// covers anything.
func (a Amount) Covers(v decimal.Decimal) bool {
	return a.Infinite || a.Value.GreaterThanOrEqual(v)
}

// Sub returns a minus v. Subtracting from an infinite balance leaves it
// infinite.
func (a Amount) Sub(v decimal.Decimal) Amount {
	if a.Infinite {
		return a
	}
	return Amount{Value: a.Value.Sub(v)}
}

// Add returns a plus v. Adding to an infinite balance leaves it infinite.
func (a Amount) Add(v decimal.Decimal) Amount {
	if a.Infinite {
		return a
	}
	return Amount{Value: a.Value.Add(v)}
}

func (a Amount) String() string {
	if a.Infinite {
		return "inf"
	}
	return a.Value.String()
}

// MarshalJSON renders the exact decimal as a string, or "inf" for the
// sentinel. Strings keep precision out of float territory on the wire.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Infinite {
		return []byte(`"inf"`), nil
	}
	return []byte(`"` + a.Value.String() + `"`), nil
}

// UnmarshalJSON accepts "inf" or any decimal string/number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "inf" {
		*a = InfiniteAmount()
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	*a = NewAmount(v)
	return nil
}

// Account is a ledger entity holding a balance.
type Account struct {
	AccountID int64       `json:"account_id"`
	Type      AccountType `json:"account_type"`
	Amount    Amount      `json:"amount"`
}

// Wallet is the merged account + wallet view returned for reads. The wallet
// fields are present only for USER accounts.
type Wallet struct {
	Account
	TaxPaid      *decimal.Decimal `json:"taxpaid,omitempty"`
	StealUses    *int64           `json:"steal_uses,omitempty"`
	StealSuccess *int64           `json:"steal_success,omitempty"`
}

// TransferResult echoes the post-transfer balances, computed from the
// row-locked in-transaction reads plus the moved amount.
type TransferResult struct {
	SenderAmount   Amount `json:"sender_amount"`
	ReceiverAmount Amount `json:"receiver_amount"`
}

// StealCounter names one of the wallet game counters.
type StealCounter string

const (
	StealUses    StealCounter = "steal_uses"
	StealSuccess StealCounter = "steal_success"
)

// Valid reports whether c names a known counter. The value doubles as the
// column name, so anything else must be rejected before it reaches SQL.
func (c StealCounter) Valid() bool {
	return c == StealUses || c == StealSuccess
}
