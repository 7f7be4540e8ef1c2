//go:build integration && postgres

package ledger_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Printendo/jose/internal/errors"
	"github.com/Printendo/jose/internal/ledger"
	"github.com/Printendo/jose/internal/logging"
	"github.com/Printendo/jose/internal/platform/migrations"
	"github.com/Printendo/jose/internal/stats"
)

// openTestDB connects to the database named by DATABASE_URL and resets the
// schema. Run with: go test -tags "integration postgres" ./internal/ledger/...
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, migrations.Apply(ctx, db))

	_, err = db.ExecContext(ctx, "TRUNCATE transactions, wallets, accounts")
	require.NoError(t, err)
	return db
}

func newIntegrationService(t *testing.T) (*ledger.Service, *sql.DB) {
	t.Helper()
	db := openTestDB(t)
	return ledger.NewService(ledger.NewStore(db), logging.Discard()), db
}

func mustCreate(t *testing.T, svc *ledger.Service, id int64, typ ledger.AccountType) {
	t.Helper()
	_, err := svc.CreateAccount(context.Background(), id, typ)
	require.NoError(t, err)
}

func fund(t *testing.T, db *sql.DB, id int64, amount string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		"UPDATE accounts SET amount = $1 WHERE account_id = $2", amount, id)
	require.NoError(t, err)
}

func balanceOf(t *testing.T, db *sql.DB, id int64) decimal.Decimal {
	t.Helper()
	var raw string
	require.NoError(t, db.QueryRowContext(context.Background(),
		"SELECT amount FROM accounts WHERE account_id = $1", id).Scan(&raw))
	return decimal.RequireFromString(raw)
}

func TestIntegrationCreateAccountPairsWalletRow(t *testing.T) {
	svc, db := newIntegrationService(t)
	ctx := context.Background()

	mustCreate(t, svc, 1, ledger.AccountUser)
	mustCreate(t, svc, 2, ledger.AccountTaxbank)

	var wallets int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM wallets").Scan(&wallets))
	assert.Equal(t, 1, wallets, "only the user account gets a wallet row")

	_, err := svc.CreateAccount(ctx, 1, ledger.AccountUser)
	assert.True(t, errors.IsKind(err, errors.KindExists))
}

func TestIntegrationConcurrentTransfersNeverOverdraw(t *testing.T) {
	svc, db := newIntegrationService(t)
	ctx := context.Background()

	mustCreate(t, svc, 1, ledger.AccountUser)
	mustCreate(t, svc, 2, ledger.AccountUser)
	fund(t, db, 1, "100")

	const workers = 50
	amount := decimal.NewFromInt(10)

	var wg sync.WaitGroup
	outcomes := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, 1, 2, amount)
			outcomes <- err
		}()
	}
	wg.Wait()
	close(outcomes)

	var succeeded, refused int
	for err := range outcomes {
		switch {
		case err == nil:
			succeeded++
		case errors.IsKind(err, errors.KindCondition):
			refused++
		default:
			t.Fatalf("unexpected transfer error: %v", err)
		}
	}

	// 100 funds at 10 per transfer admits exactly 10 commits.
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, workers-10, refused)
	assert.True(t, balanceOf(t, db, 1).IsZero(), "sender drained exactly to zero")
	assert.True(t, balanceOf(t, db, 2).Equal(decimal.NewFromInt(100)))

	var logged int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions").Scan(&logged))
	assert.Equal(t, succeeded, logged, "one audit row per committed transfer")
}

func TestIntegrationConcurrentTransfersConserveMoney(t *testing.T) {
	svc, db := newIntegrationService(t)
	ctx := context.Background()

	for id := int64(1); id <= 4; id++ {
		mustCreate(t, svc, id, ledger.AccountUser)
		fund(t, db, id, "250")
	}

	pairs := [][2]int64{{1, 2}, {2, 3}, {3, 4}, {4, 1}, {2, 1}, {3, 1}}
	amount := decimal.RequireFromString("7.5")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		pair := pairs[i%len(pairs)]
		wg.Add(1)
		go func(sender, receiver int64) {
			defer wg.Done()
			_, err := svc.Transfer(ctx, sender, receiver, amount)
			if err != nil && !errors.IsKind(err, errors.KindCondition) {
				t.Errorf("transfer %d -> %d: %v", sender, receiver, err)
			}
		}(pair[0], pair[1])
	}
	wg.Wait()

	total := decimal.Zero
	for id := int64(1); id <= 4; id++ {
		total = total.Add(balanceOf(t, db, id))
	}
	assert.True(t, total.Equal(decimal.NewFromInt(1000)),
		"expected 1000 in the system, got %s", total)
}

func TestIntegrationStealCountersAreIndependent(t *testing.T) {
	svc, db := newIntegrationService(t)
	ctx := context.Background()

	mustCreate(t, svc, 1, ledger.AccountUser)

	for i := 0; i < 3; i++ {
		ok, err := svc.IncrementSteal(ctx, 1, ledger.StealUses)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := svc.IncrementSteal(ctx, 1, ledger.StealSuccess)
	require.NoError(t, err)
	assert.True(t, ok)

	// No wallet row for an id that was never created.
	ok, err = svc.IncrementSteal(ctx, 999, ledger.StealUses)
	require.NoError(t, err)
	assert.False(t, ok)

	var uses, succ int64
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT steal_uses, steal_success FROM wallets WHERE user_id = 1").Scan(&uses, &succ))
	assert.Equal(t, int64(3), uses)
	assert.Equal(t, int64(1), succ)
}

func TestIntegrationAggregatesConsistentAtQuiescence(t *testing.T) {
	svc, db := newIntegrationService(t)
	ctx := context.Background()

	mustCreate(t, svc, 1, ledger.AccountUser)
	mustCreate(t, svc, 2, ledger.AccountUser)
	mustCreate(t, svc, 3, ledger.AccountTaxbank)
	fund(t, db, 1, "100")
	fund(t, db, 3, "50")

	_, err := svc.Transfer(ctx, 1, 2, decimal.NewFromInt(30))
	require.NoError(t, err)

	agg := stats.NewService(db)

	sums, err := agg.SumsByType(ctx)
	require.NoError(t, err)
	assert.True(t, sums.GDP.Equal(decimal.NewFromInt(150)))
	assert.True(t, sums.User.Add(sums.Taxbank).Equal(sums.GDP))

	report, err := agg.CompositeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Accounts)
	assert.Equal(t, int64(2), report.UserAccounts)
	assert.Equal(t, int64(1), report.TxbAccounts)
	assert.Equal(t, report.Accounts, report.UserAccounts+report.TxbAccounts)

	rank, err := agg.Rank(ctx, 2, nil)
	require.NoError(t, err)
	// Wallet 2 holds 30 against wallet 1's 70.
	assert.Equal(t, int64(2), rank.Rank)
	assert.Equal(t, int64(2), rank.Total)
}

func TestIntegrationInfiniteAccountIsNeverDebited(t *testing.T) {
	svc, db := newIntegrationService(t)
	ctx := context.Background()

	mustCreate(t, svc, 1, ledger.AccountTaxbank)
	mustCreate(t, svc, 2, ledger.AccountUser)
	_, err := db.ExecContext(ctx,
		"UPDATE accounts SET infinite = TRUE WHERE account_id = 1")
	require.NoError(t, err)

	res, err := svc.Transfer(ctx, 1, 2, decimal.NewFromInt(1_000_000))
	require.NoError(t, err)
	assert.True(t, res.SenderAmount.Infinite)
	assert.True(t, res.ReceiverAmount.Value.Equal(decimal.NewFromInt(1_000_000)))

	// Infinite holdings stay out of the aggregates.
	gdp, err := stats.NewService(db).GDP(ctx)
	require.NoError(t, err)
	assert.True(t, gdp.Equal(decimal.NewFromInt(1_000_000)))
}
