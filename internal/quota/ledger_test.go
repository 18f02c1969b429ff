package quota

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenchat/request-gateway/internal/gwerr"
)

func openTestLedger(t *testing.T, defaultLimit int) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "accounts.db"), defaultLimit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestCheckAndReserve_UnknownProfile(t *testing.T) {
	l := openTestLedger(t, 300)

	_, err := l.CheckAndReserve(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, gwerr.IsKind(err, gwerr.KindProfileNotFound))
}

func TestCommit_IncrementsCounter(t *testing.T) {
	l := openTestLedger(t, 300)
	ctx := context.Background()
	require.NoError(t, l.EnsureAccount(ctx, "u1", 0))

	remaining, err := l.CheckAndReserve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 300, remaining)

	require.NoError(t, l.Commit(ctx, "u1"))
	require.NoError(t, l.Commit(ctx, "u1"))

	acct, err := l.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, acct.ResearchCount)

	remaining, err = l.CheckAndReserve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 298, remaining)
}

func TestQuotaExhaustion(t *testing.T) {
	l := openTestLedger(t, 3)
	ctx := context.Background()
	require.NoError(t, l.EnsureAccount(ctx, "u1", 0))

	for i := 0; i < 3; i++ {
		_, err := l.CheckAndReserve(ctx, "u1")
		require.NoError(t, err)
		require.NoError(t, l.Commit(ctx, "u1"))
	}

	_, err := l.CheckAndReserve(ctx, "u1")
	require.Error(t, err)
	assert.True(t, gwerr.IsKind(err, gwerr.KindQuotaExceeded))
	assert.Equal(t, "Limite mensal de 3 pesquisas atingido.", err.(*gwerr.Error).Message)

	// The counter never passes the limit even when commit is forced.
	err = l.Commit(ctx, "u1")
	require.Error(t, err)
	assert.True(t, gwerr.IsKind(err, gwerr.KindQuotaExceeded))

	acct, err := l.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, acct.ResearchCount)
}

func TestCommit_ConditionalUnderConcurrency(t *testing.T) {
	l := openTestLedger(t, 5)
	ctx := context.Background()
	require.NoError(t, l.EnsureAccount(ctx, "u1", 0))

	// Simulate many callers that all passed the check before any committed.
	// Only limit commits may land.
	var ok, rejected int
	for i := 0; i < 20; i++ {
		if err := l.Commit(ctx, "u1"); err == nil {
			ok++
		} else {
			assert.True(t, gwerr.IsKind(err, gwerr.KindQuotaExceeded))
			rejected++
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, rejected)

	acct, err := l.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, acct.ResearchCount)
}

func TestMonthlyReset(t *testing.T) {
	l := openTestLedger(t, 2)
	ctx := context.Background()
	require.NoError(t, l.EnsureAccount(ctx, "u1", 0))

	jan := time.Date(2026, time.January, 31, 23, 0, 0, 0, time.Local)
	l.now = func() time.Time { return jan }

	for i := 0; i < 2; i++ {
		_, err := l.CheckAndReserve(ctx, "u1")
		require.NoError(t, err)
		require.NoError(t, l.Commit(ctx, "u1"))
	}
	_, err := l.CheckAndReserve(ctx, "u1")
	require.Error(t, err)

	// One hour later it is February: a fresh month, not a rolling window.
	l.now = func() time.Time { return jan.Add(time.Hour) }

	remaining, err := l.CheckAndReserve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	acct, err := l.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, acct.ResearchCount)
}

func TestSameMonthWithinMonth(t *testing.T) {
	l := openTestLedger(t, 10)
	ctx := context.Background()
	require.NoError(t, l.EnsureAccount(ctx, "u1", 0))

	first := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local)
	l.now = func() time.Time { return first }
	_, err := l.CheckAndReserve(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, "u1"))

	// 30 days later but still March: no reset.
	l.now = func() time.Time { return first.AddDate(0, 0, 30) }
	remaining, err := l.CheckAndReserve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

func TestPerAccountLimitOverridesDefault(t *testing.T) {
	l := openTestLedger(t, 300)
	ctx := context.Background()
	require.NoError(t, l.EnsureAccount(ctx, "vip", 2))

	remaining, err := l.CheckAndReserve(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	require.NoError(t, l.Commit(ctx, "vip"))
	require.NoError(t, l.Commit(ctx, "vip"))

	err = l.Commit(ctx, "vip")
	require.Error(t, err)
	assert.Equal(t, "Limite mensal de 2 pesquisas atingido.", err.(*gwerr.Error).Message)
}

func TestExceededMessageUsesDefaultLimit(t *testing.T) {
	err := exceededErr(300)
	assert.Equal(t, "Limite mensal de 300 pesquisas atingido.", err.(*gwerr.Error).Message)
	assert.True(t, gwerr.IsKind(err, gwerr.KindQuotaExceeded))
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	l := openTestLedger(t, 300)
	ctx := context.Background()

	require.NoError(t, l.EnsureAccount(ctx, "u1", 0))
	require.NoError(t, l.Commit(ctx, "u1"))
	// Re-ensuring must not clobber existing usage.
	require.NoError(t, l.EnsureAccount(ctx, "u1", 0))

	acct, err := l.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, acct.ResearchCount)
}
