// Package stats computes read-only economy aggregates over the ledger
// tables. Queries take no locks; a composite report's constituents may
// observe different commit points, which is fine for reporting.
package stats

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Printendo/jose/internal/errors"
	"github.com/Printendo/jose/internal/ledger"
)

// Sums is the economy-wide money breakdown. Infinite accounts are excluded
// from every sum.
type Sums struct {
	GDP     decimal.Decimal `json:"gdp"`
	User    decimal.Decimal `json:"user"`
	Taxbank decimal.Decimal `json:"taxbank"`
}

// Counts is the account census.
type Counts struct {
	Accounts     int64 `json:"accounts"`
	UserAccounts int64 `json:"user_accounts"`
	TxbAccounts  int64 `json:"txb_accounts"`
}

// StealTotals sums the game counters across all wallets.
type StealTotals struct {
	Uses    int64 `json:"steals"`
	Success int64 `json:"success"`
}

// Report is the flat composite served by /api/stats.
type Report struct {
	Accounts     int64           `json:"accounts"`
	UserAccounts int64           `json:"user_accounts"`
	TxbAccounts  int64           `json:"txb_accounts"`
	GDP          decimal.Decimal `json:"gdp"`
	UserMoney    decimal.Decimal `json:"user_money"`
	TxbMoney     decimal.Decimal `json:"txb_money"`
	Steals       int64           `json:"steals"`
	Success      int64           `json:"success"`
}

// Rank is a wallet's ordinal position among user wallets.
type Rank struct {
	WalletID int64  `json:"wallet_id"`
	Rank     int64  `json:"rank"`
	Total    int64  `json:"total"`
	Basis    string `json:"basis"`
}

// Service runs the aggregation queries.
type Service struct {
	db *sql.DB
}

// NewService wraps the shared database handle.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GDP returns the total money supply across all finite accounts.
func (s *Service) GDP(ctx context.Context) (decimal.Decimal, error) {
	var gdp decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM accounts
		WHERE NOT infinite
	`).Scan(&gdp)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum gdp: %w", err)
	}
	return gdp, nil
}

// SumsByType returns GDP plus its user/taxbank partition.
func (s *Service) SumsByType(ctx context.Context) (*Sums, error) {
	gdp, err := s.GDP(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.sumForType(ctx, ledger.AccountUser)
	if err != nil {
		return nil, err
	}
	taxbank, err := s.sumForType(ctx, ledger.AccountTaxbank)
	if err != nil {
		return nil, err
	}

	return &Sums{GDP: gdp, User: user, Taxbank: taxbank}, nil
}

func (s *Service) sumForType(ctx context.Context, t ledger.AccountType) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM accounts
		WHERE account_type = $1 AND NOT infinite
	`, int(t)).Scan(&sum)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum %s accounts: %w", t, err)
	}
	return sum, nil
}

// Counts returns total and per-type account counts.
func (s *Service) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE account_type = $1),
			COUNT(*) FILTER (WHERE account_type = $2)
		FROM accounts
	`, int(ledger.AccountUser), int(ledger.AccountTaxbank)).Scan(&c.Accounts, &c.UserAccounts, &c.TxbAccounts)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	return &c, nil
}

// StealTotals sums steal_uses and steal_success across all wallets.
func (s *Service) StealTotals(ctx context.Context) (*StealTotals, error) {
	var t StealTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(steal_uses), 0), COALESCE(SUM(steal_success), 0)
		FROM wallets
	`).Scan(&t.Uses, &t.Success)
	if err != nil {
		return nil, fmt.Errorf("sum steal counters: %w", err)
	}
	return &t, nil
}

// CompositeStats assembles the flat report from the constituent aggregates.
// Each constituent runs as its own query and may see a different commit
// point.
func (s *Service) CompositeStats(ctx context.Context) (*Report, error) {
	sums, err := s.SumsByType(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		return nil, err
	}
	steals, err := s.StealTotals(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		Accounts:     counts.Accounts,
		UserAccounts: counts.UserAccounts,
		TxbAccounts:  counts.TxbAccounts,
		GDP:          sums.GDP,
		UserMoney:    sums.User,
		TxbMoney:     sums.Taxbank,
		Steals:       steals.Uses,
		Success:      steals.Success,
	}, nil
}

// Rank returns the wallet's ordinal position among finite user wallets,
// richest first, ranked by balance. Guild-scoped ranking needs guild
// membership, which lives outside this store; asking for it reports the
// extension as unimplemented.
func (s *Service) Rank(ctx context.Context, walletID int64, guildID *int64) (*Rank, error) {
	if guildID != nil {
		return nil, errors.Unimplemented("guild-scoped rank is not implemented")
	}

	var amount decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT amount
		FROM accounts
		WHERE account_id = $1 AND account_type = $2 AND NOT infinite
	`, walletID, int(ledger.AccountUser)).Scan(&amount)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("Account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select wallet amount: %w", err)
	}

	var rank, total int64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			1 + COUNT(*) FILTER (WHERE amount > $1),
			COUNT(*)
		FROM accounts
		WHERE account_type = $2 AND NOT infinite
	`, amount, int(ledger.AccountUser)).Scan(&rank, &total)
	if err != nil {
		return nil, fmt.Errorf("rank wallet: %w", err)
	}

	return &Rank{WalletID: walletID, Rank: rank, Total: total, Basis: "amount"}, nil
}
