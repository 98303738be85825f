package scheduler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	buyerrepo "github.com/smallbiznis/paysettle/internal/buyer/repository"
	"github.com/smallbiznis/paysettle/internal/clock"
	"github.com/smallbiznis/paysettle/internal/config"
	"github.com/smallbiznis/paysettle/internal/gateway"
	orderdomain "github.com/smallbiznis/paysettle/internal/order/domain"
	orderrepo "github.com/smallbiznis/paysettle/internal/order/repository"
	orderservice "github.com/smallbiznis/paysettle/internal/order/service"
	"github.com/smallbiznis/paysettle/internal/payment/callback"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/paysettle/internal/payment/repository"
	paymentservice "github.com/smallbiznis/paysettle/internal/payment/service"
	"github.com/smallbiznis/paysettle/internal/purchasable"
	"github.com/smallbiznis/paysettle/internal/purchasable/competition"
	"github.com/smallbiznis/paysettle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type pollingGateway struct {
	clock clock.Clock

	mu     sync.Mutex
	status string
	err    error
	polled []int64
}

func (g *pollingGateway) RequestCheckoutLink(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutLink, error) {
	link := gateway.MockLink(req.OrderCode, g.clock.Now().Add(gateway.CheckoutTTL))
	link.PaymentLinkID = "pl_" + strconv.FormatInt(req.OrderCode, 10)
	link.Mock = false
	return link, nil
}

func (g *pollingGateway) GetPaymentInfo(_ context.Context, orderCode int64) (*gateway.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polled = append(g.polled, orderCode)
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.PaymentInfo{
		OrderCode:  orderCode,
		Status:     g.status,
		Amount:     150000,
		AmountPaid: 150000,
	}, nil
}

func (g *pollingGateway) VerifyCallback([]byte, string) error { return nil }

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	gateway *pollingGateway
	sched   *Scheduler
	orders  orderdomain.Service
	pay     *paymentservice.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := testutil.OpenDB(t)
	testutil.SeedUser(t, conn, 10, "Linh", "linh@example.com")
	testutil.SeedCompetition(t, conn, 42, "Spring Open", 150000)
	testutil.SeedCompetition(t, conn, 43, "Summer Open", 150000)

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	registry := purchasable.NewRegistry(competition.New(conn, clk))
	settings := config.NewStaticSettlementConfigHolder(config.DefaultSettlementConfig())
	gw := &pollingGateway{clock: clk, status: "PAID"}

	orders := orderservice.New(orderservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   orderrepo.Provide(),
		Buyers: buyerrepo.Provide(conn),
		Items:  registry,
		Clock:  clk,
	})
	pay := paymentservice.NewService(paymentservice.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     paymentrepo.Provide(),
		Orders:   orderrepo.Provide(),
		Buyers:   buyerrepo.Provide(conn),
		Items:    registry,
		Gateway:  gw,
		Statuses: callback.NewStatusTable(settings),
		Settings: settings,
		Clock:    clk,
	})
	sched, err := New(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       paymentrepo.Provide(),
		PaymentSvc: pay,
		Config:     Config{StaleAfter: 5 * time.Minute, BatchSize: 10},
	})
	require.NoError(t, err)

	return &fixture{db: conn, clock: clk, gateway: gw, sched: sched, orders: orders, pay: pay}
}

func (f *fixture) checkout(t *testing.T, competitionID int) int64 {
	t.Helper()
	ctx := context.Background()
	order, err := f.orders.CreateOrder(ctx, orderdomain.CreateOrderRequest{
		BuyerID: "10",
		Lines: []orderdomain.CreateOrderLine{{
			ItemKind: "competition",
			ItemID:   strconv.Itoa(competitionID),
			Quantity: 1,
		}},
	})
	require.NoError(t, err)
	result, err := f.pay.Checkout(ctx, paymentdomain.CheckoutRequest{OrderID: order.ID.String()})
	require.NoError(t, err)
	return result.OrderCode
}

func (f *fixture) status(t *testing.T, code int64) paymentdomain.Status {
	t.Helper()
	payment, err := f.pay.GetByOrderCode(context.Background(), code)
	require.NoError(t, err)
	return payment.Status
}

func TestReconcileSettlesOnlyStalePayments(t *testing.T) {
	f := newFixture(t)

	stale := f.checkout(t, 42)
	f.clock.Advance(10 * time.Minute)
	fresh := f.checkout(t, 43)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, []int64{stale}, f.gateway.polled)
	assert.Equal(t, paymentdomain.StatusPaid, f.status(t, stale))
	assert.Equal(t, paymentdomain.StatusPending, f.status(t, fresh))
	assert.Equal(t, competition.PayingStatusPaid, testutil.CompetitionStatus(t, f.db, 42))

	// settled payments drop out of the next sweep
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, []int64{stale}, f.gateway.polled)
}

func TestReconcileKeepsGoingAfterGatewayError(t *testing.T) {
	f := newFixture(t)

	first := f.checkout(t, 42)
	second := f.checkout(t, 43)
	f.clock.Advance(6 * time.Minute)
	f.gateway.err = &gateway.Error{Op: "get_payment_info", StatusCode: 503}

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), jobReconcilePending)

	var gwErr *gateway.Error
	assert.True(t, errors.As(err, &gwErr))
	assert.ElementsMatch(t, []int64{first, second}, f.gateway.polled)
	assert.Equal(t, paymentdomain.StatusPending, f.status(t, first))
	assert.Equal(t, paymentdomain.StatusPending, f.status(t, second))
}

func TestReconcileUnmappedStatusLeavesPaymentPending(t *testing.T) {
	f := newFixture(t)

	code := f.checkout(t, 42)
	f.clock.Advance(6 * time.Minute)
	f.gateway.status = "PROCESSING"

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, paymentdomain.StatusPending, f.status(t, code))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := ProvideConfig(config.Config{Reconcile: config.ReconcileConfig{Enabled: true}})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}

func TestSweepRunTally(t *testing.T) {
	f := newFixture(t)
	ctx, run, owner := f.sched.beginRun(context.Background(), jobReconcilePending, 10)
	require.True(t, owner)

	_, nested, nestedOwner := f.sched.beginRun(ctx, jobReconcilePending, 10)
	assert.False(t, nestedOwner)
	assert.Same(t, run, nested)

	f.sched.recordOutcome(ctx, outcomeApplied)
	f.sched.recordOutcome(ctx, outcomeSkipped)
	assert.Equal(t, 1, run.settled())
	assert.False(t, run.failed())

	f.sched.recordOutcome(ctx, outcomeError)
	assert.True(t, run.failed())

	// outside a run the tally is dropped
	f.sched.recordOutcome(context.Background(), outcomeApplied)
	assert.Equal(t, 1, run.settled())
}
