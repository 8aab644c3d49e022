package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/domain"
	"github.com/example/paybill-gateway/internal/store"
	m "github.com/example/paybill-gateway/pkg/metrics"
)

func seed(t *testing.T, mem *store.Memory, mid, cid string, age time.Duration) *domain.PendingPush {
	p := &domain.PendingPush{
		CredentialRef: 1, MerchantRequestID: mid, CheckoutRequestID: cid,
		PhoneNumber: "254712345678", AccountReference: "abc1", Amount: decimal.NewFromInt(10),
	}
	require.NoError(t, mem.CreatePush(context.Background(), p))
	mem.AgePush(p.ID, time.Now().UTC().Add(-age))
	return p
}

func TestSweepListsOnlyStalePending(t *testing.T) {
	mem := store.NewMemory()
	old := seed(t, mem, "M1", "C1", time.Hour)
	seed(t, mem, "M2", "C2", time.Minute)
	done := seed(t, mem, "M3", "C3", time.Hour)
	_, err := mem.ResolvePush(context.Background(), done.ID, domain.Resolution{ResultCode: new(int), ResultDesc: "ok"}, time.Now())
	require.NoError(t, err)

	s := New(mem, nil, zap.NewNop(), Options{StaleAfter: 15 * time.Minute, Interval: time.Minute})
	stale, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StalePendingPushes))
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	locker := redislock.New(rdb)

	mem := store.NewMemory()
	seed(t, mem, "M1", "C1", time.Hour)
	s := New(mem, locker, zap.NewNop(), Options{StaleAfter: time.Minute, Interval: time.Minute})

	ctx := context.Background()
	held, err := locker.Obtain(ctx, lockKey, time.Minute, nil)
	require.NoError(t, err)

	_, err = s.Sweep(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, held.Release(ctx))
	stale, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	// released after the sweep
	again, err := locker.Obtain(ctx, lockKey, time.Minute, nil)
	require.NoError(t, err)
	_ = again.Release(ctx)
}

func TestStartRunsOnSchedule(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, "M1", "C1", time.Hour)
	seed(t, mem, "M2", "C2", time.Hour)

	s := New(mem, nil, zap.NewNop(), Options{StaleAfter: time.Minute, Interval: 50 * time.Millisecond})
	sched, err := s.Start()
	require.NoError(t, err)
	defer func() { _ = sched.Shutdown() }()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StalePendingPushes) == 2
	}, 2*time.Second, 20*time.Millisecond)
}
