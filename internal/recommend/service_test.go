package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockStores struct {
	orders    *MockOrderReader
	products  *MockProductReader
	customers *MockCustomerStore
	clock     *fakeClock
}

func newMockService(t *testing.T, cfg Config, opts ...Option) (*Service, mockStores) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := mockStores{
		orders:    NewMockOrderReader(ctrl),
		products:  NewMockProductReader(ctrl),
		customers: NewMockCustomerStore(ctrl),
		clock:     &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	opts = append([]Option{WithClock(m.clock.Now)}, opts...)
	svc, err := New(cfg, m.orders, m.products, m.customers, opts...)
	require.NoError(t, err)
	return svc, m
}

func TestNewRequiresStores(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestNewRejectsInvalidSegmentTable(t *testing.T) {
	ctrl := gomock.NewController(t)
	table := DefaultSegmentTable()
	table.Tiers = append(table.Tiers, TierThreshold{Tier: TierBronze})

	_, err := New(Config{}, NewMockOrderReader(ctrl), NewMockProductReader(ctrl), NewMockCustomerStore(ctrl), WithSegmentTable(table))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLimitValidation(t *testing.T) {
	svc, _ := newMockService(t, Config{MaxLimit: 20})
	ctx := context.Background()

	for _, limit := range []int{0, -1, 21} {
		_, err := svc.PopularProducts(ctx, limit)
		assert.ErrorIs(t, err, ErrInvalidInput, "limit=%d", limit)

		_, err = svc.ItemBased(ctx, "A", limit)
		assert.ErrorIs(t, err, ErrInvalidInput, "limit=%d", limit)

		_, err = svc.Hybrid(ctx, "c1", HybridOptions{Limit: limit})
		assert.ErrorIs(t, err, ErrInvalidInput, "limit=%d", limit)
	}
}

func TestBlankArgumentsAreInvalid(t *testing.T) {
	svc, _ := newMockService(t, Config{})
	ctx := context.Background()

	_, err := svc.ItemBased(ctx, "", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UserBased(ctx, "", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ByCategory(ctx, "  ", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RefreshMetrics(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStoreFailureIsServiceUnavailable(t *testing.T) {
	svc, m := newMockService(t, Config{})
	ctx := context.Background()
	boom := errors.New("connection reset")

	m.products.EXPECT().ActiveProducts(gomock.Any()).Return(nil, boom)
	_, err := svc.PopularProducts(ctx, 5)
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	m.customers.EXPECT().CustomerExists(gomock.Any(), "c1").Return(false, boom)
	_, err = svc.UserBased(ctx, "c1", 5)
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	m.products.EXPECT().ProductByID(gomock.Any(), "A").Return(ProductSummary{ID: "A", Active: true}, nil)
	m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(nil, boom)
	_, err = svc.ItemBased(ctx, "A", 5)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	svc, m := newMockService(t, Config{})
	ctx := context.Background()

	m.products.EXPECT().ProductByID(gomock.Any(), "ghost").Return(ProductSummary{}, notFound("product", "ghost"))
	_, err := svc.ItemBased(ctx, "ghost", 5)
	assert.ErrorIs(t, err, ErrNotFound)

	m.customers.EXPECT().CustomerExists(gomock.Any(), "nobody").Return(false, nil).Times(2)
	_, err = svc.UserBased(ctx, "nobody", 5)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Hybrid(ctx, "nobody", HybridOptions{Limit: 5})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemBasedRanksPartners(t *testing.T) {
	svc, m := newMockService(t, Config{})
	ctx := context.Background()

	m.products.EXPECT().ProductByID(gomock.Any(), "A").Return(ProductSummary{ID: "A", Active: true}, nil)
	m.orders.EXPECT().EligibleOrders(gomock.Any(), time.Time{}).Return(abcOrders(), nil)
	m.products.EXPECT().ProductsByIDs(gomock.Any(), gomock.Any()).Return(map[string]ProductSummary{
		"B": {ID: "B", Active: true, SalesCount: 5},
		"C": {ID: "C", Active: true, SalesCount: 3},
	}, nil)

	res, err := svc.ItemBased(ctx, "A", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "B", res[0].Product.ID)
	assert.Equal(t, "C", res[1].Product.ID)
	assert.InDelta(t, 2.0/3.0, res[0].Score, 1e-9)
	assert.InDelta(t, 2.0/3.0, res[1].Score, 1e-9)
	assert.Equal(t, "frequently bought together (2 orders)", res[0].Reason)
}

func TestCorpusWindowBoundsTheRead(t *testing.T) {
	svc, m := newMockService(t, Config{CorpusWindow: 30 * 24 * time.Hour})

	since := m.clock.Now().Add(-30 * 24 * time.Hour)
	m.orders.EXPECT().EligibleOrders(gomock.Any(), since).Return(abcOrders(), nil)

	snap, err := svc.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.matrix.Pairs())
}

func TestPopularityRejectsNegativeScores(t *testing.T) {
	svc, m := newMockService(t, Config{})

	m.products.EXPECT().ActiveProducts(gomock.Any()).Return([]ProductSummary{
		{ID: "A", Active: true, SalesCount: 10},
		{ID: "B", Active: true, SalesCount: -4},
	}, nil)

	_, err := svc.PopularProducts(context.Background(), 5)
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestSnapshotServesStaleWhileRebuilding(t *testing.T) {
	svc, m := newMockService(t, Config{RefreshInterval: 10 * time.Minute})
	ctx := context.Background()

	gomock.InOrder(
		m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(abcOrders(), nil),
		m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(abcOrders()[:1], nil),
	)

	first, err := svc.snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.matrix.Pairs())

	again, err := svc.snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	m.clock.Advance(11 * time.Minute)
	stale, err := svc.snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, first, stale)

	require.Eventually(t, func() bool {
		cur := svc.cache.current.Load()
		return cur != first && cur.matrix.Pairs() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestZeroRefreshIntervalRebuildsEveryCall(t *testing.T) {
	svc, m := newMockService(t, Config{})
	ctx := context.Background()

	gomock.InOrder(
		m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(abcOrders(), nil),
		m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(abcOrders()[:2], nil),
		m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout")),
	)

	first, err := svc.snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.matrix.Pairs())

	m.clock.Advance(time.Second)
	second, err := svc.snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.matrix.Pairs())

	// a failed rebuild keeps serving the last published matrix
	third, err := svc.snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, second, third)
}

func TestSnapshotWithoutMatrixFailsWhenBuildFails(t *testing.T) {
	svc, m := newMockService(t, Config{RefreshInterval: time.Minute})

	m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(nil, errors.New("no primary"))

	_, err := svc.snapshot(context.Background())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestSnapshotCallerDeadlineWithoutMatrix(t *testing.T) {
	svc, m := newMockService(t, Config{RefreshInterval: time.Minute})

	release := make(chan struct{})
	m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, time.Time) ([]OrderRecord, error) {
			<-release
			return abcOrders(), nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.snapshot(ctx)
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	close(release)
	require.Eventually(t, func() bool { return svc.cache.current.Load() != nil }, time.Second, 5*time.Millisecond)
}

func TestPublishKeepsNewerSnapshot(t *testing.T) {
	var c matrixCache
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := &snapshot{matrix: BuildMatrix(nil), builtAt: t0.Add(time.Minute)}
	older := &snapshot{matrix: BuildMatrix(nil), builtAt: t0}

	assert.True(t, c.publish(newer))
	assert.False(t, c.publish(older))
	assert.Same(t, newer, c.current.Load())
}

func TestRebuildMatrixReportsStats(t *testing.T) {
	svc, m := newMockService(t, Config{RefreshInterval: time.Hour})

	m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(abcOrders(), nil)
	m.products.EXPECT().ActiveProducts(gomock.Any()).Return([]ProductSummary{
		{ID: "A", Active: true}, {ID: "B", Active: true}, {ID: "C", Active: true}, {ID: "D", Active: true},
	}, nil)

	st, err := svc.RebuildMatrix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalProducts)
	assert.Equal(t, 3, st.TotalOrders)
	assert.Equal(t, 3, st.TotalUsers)
	assert.Equal(t, 3, st.MatrixSize)
	assert.InDelta(t, 10.0/3.0, st.AvgCoOccurrencesPerProduct, 1e-9)
	assert.InDelta(t, 7.0/3.0, st.AvgItemsPerOrder, 1e-9)
	assert.Equal(t, m.clock.Now(), st.BuiltAt)
}

func TestRefreshMetricsLockFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	svc, _ := newMockService(t, Config{}, WithLocker(locker))

	locker.EXPECT().Lock(gomock.Any(), "customer-metrics:c1").Return(nil, errors.New("redis down"))

	_, err := svc.RefreshMetrics(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestRefreshMetricsSavesUnderLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	svc, m := newMockService(t, Config{}, WithLocker(locker))

	released := false
	locker.EXPECT().Lock(gomock.Any(), "customer-metrics:c1").Return(func() { released = true }, nil)
	m.customers.EXPECT().CustomerExists(gomock.Any(), "c1").Return(true, nil)
	m.orders.EXPECT().CustomerOrders(gomock.Any(), "c1").Return([]OrderRecord{
		{ID: "o1", CustomerID: "c1", Total: 700, Items: []LineItem{{ProductID: "A", Quantity: 1}}},
	}, nil)
	m.products.EXPECT().ProductsByIDs(gomock.Any(), []string{"A"}).Return(map[string]ProductSummary{
		"A": {ID: "A", Categories: []string{"Creatina"}},
	}, nil)
	m.customers.EXPECT().SaveSnapshot(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, snap CustomerSnapshot) error {
			assert.False(t, released, "snapshot saved after lock release")
			assert.Equal(t, Segment{Label: SegmentBodybuilder, Tier: TierSilver}, snap.Segment)
			return nil
		})

	snap, err := svc.RefreshMetrics(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 1, snap.Metrics.TotalOrders)
	assert.Equal(t, m.clock.Now(), snap.UpdatedAt)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	release, err := k.Lock(ctx, "c1")
	require.NoError(t, err)

	other, err := k.Lock(ctx, "c2")
	require.NoError(t, err)
	other()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(waitCtx, "c1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()

	again, err := k.Lock(ctx, "c1")
	require.NoError(t, err)
	again()

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}

func TestKeyedMutexConcurrentHolders(t *testing.T) {
	k := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Lock(context.Background(), "c1")
			if err != nil {
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestRunReturnsImmediatelyWithoutInterval(t *testing.T) {
	svc, _ := newMockService(t, Config{})
	assert.NoError(t, svc.Run(context.Background()))
}

func TestRunWarmsAndStops(t *testing.T) {
	svc, m := newMockService(t, Config{RefreshInterval: time.Hour})

	m.orders.EXPECT().EligibleOrders(gomock.Any(), gomock.Any()).Return(abcOrders(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.cache.current.Load() != nil }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
