package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/alerts"
	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store/memstore"
	"github.com/sudo-init-do/gamevault/internal/utils"
)

var (
	buyer    = authz.User{ID: "buyer"}
	seller   = authz.User{ID: "seller"}
	admin    = authz.Admin{ID: "admin"}
	outsider = authz.User{ID: "mallory"}
)

type mockScheduler struct{ mock.Mock }

func (m *mockScheduler) ScheduleAutoConfirm(ctx context.Context, orderID string, after time.Duration) error {
	return m.Called(ctx, orderID, after).Error(0)
}

type recorder struct {
	mu     sync.Mutex
	events []alerts.Event
}

func (r *recorder) Notify(_ context.Context, ev alerts.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count(typ alerts.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	svc    *Service
	ledger *ledger.Engine
	store  *memstore.Store
	events *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := memstore.New()
	ctx := context.Background()
	require.NoError(t, st.PutProduct(ctx, models.Product{ID: "sword", SellerID: "seller", Title: "Legendary sword", Price: d("300"), Currency: "USD", Available: true}))
	require.NoError(t, st.PutProduct(ctx, models.Product{ID: "shield", SellerID: "seller", Title: "Sold out", Price: d("50"), Currency: "USD", Available: false}))
	eng := ledger.New(st, zap.NewNop())
	rec := &recorder{}
	return &fixture{
		svc:    NewService(eng, st, StoreCatalog{Reader: st}, rec, zap.NewNop(), opts...),
		ledger: eng,
		store:  st,
		events: rec,
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) fund(t *testing.T, user, amount string) {
	t.Helper()
	_, err := f.ledger.Credit(context.Background(), models.WalletKey{UserID: user, Currency: "USD"}, d(amount), "seed:"+user)
	require.NoError(t, err)
}

func (f *fixture) balances(t *testing.T, user string) (string, string) {
	t.Helper()
	w, err := f.ledger.Wallet(context.Background(), models.WalletKey{UserID: user, Currency: "USD"})
	require.NoError(t, err)
	return w.Available.String(), w.Escrow.String()
}

// createdOrder inserts an order that was never funded.
func (f *fixture) createdOrder(t *testing.T) *models.Order {
	t.Helper()
	o, err := f.svc.Checkout(context.Background(), buyer, "sword")
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
	require.NotNil(t, o)
	require.Equal(t, models.OrderCreated, o.State)
	return o
}

func TestCheckoutHoldsAndConfirmPaysSeller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "buyer", "1000")

	o, err := f.svc.Checkout(ctx, buyer, "sword")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFunded, o.State)
	assert.Equal(t, "seller", o.SellerID)
	av, es := f.balances(t, "buyer")
	assert.Equal(t, "700", av)
	assert.Equal(t, "300", es)

	_, err = f.svc.MarkDelivered(ctx, buyer, o.ID)
	assert.ErrorIs(t, err, models.ErrForbidden, "only the seller delivers")

	o, err = f.svc.MarkDelivered(ctx, seller, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, o.State)

	_, err = f.svc.ConfirmDelivery(ctx, seller, o.ID)
	assert.ErrorIs(t, err, models.ErrForbidden, "only the buyer confirms")

	o, err = f.svc.ConfirmDelivery(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, o.State)

	av, es = f.balances(t, "buyer")
	assert.Equal(t, "700", av)
	assert.Equal(t, "0", es)
	av, es = f.balances(t, "seller")
	assert.Equal(t, "300", av)
	assert.Equal(t, "0", es)

	_, err = f.svc.ConfirmDelivery(ctx, buyer, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	av, _ = f.balances(t, "seller")
	assert.Equal(t, "300", av)

	assert.Equal(t, 1, f.events.count(alerts.EventOrderFunded))
	assert.Equal(t, 2, f.events.count(alerts.EventOrderCompleted))
}

func TestCheckoutRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "buyer", "1000")

	_, err := f.svc.Checkout(ctx, buyer, "shield")
	assert.ErrorIs(t, err, models.ErrProductUnavailable)

	_, err = f.svc.Checkout(ctx, buyer, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Checkout(ctx, seller, "sword")
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "sellers cannot buy their own listing")

	_, err = f.svc.Checkout(ctx, authz.Anonymous{}, "sword")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	av, es := f.balances(t, "buyer")
	assert.Equal(t, "1000", av)
	assert.Equal(t, "0", es)
}

func TestFundingFailureLeavesOrderCreated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "buyer", "100")

	o := f.createdOrder(t)
	stored, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCreated, stored.State)
	av, es := f.balances(t, "buyer")
	assert.Equal(t, "100", av)
	assert.Equal(t, "0", es)

	_, err = f.ledger.Credit(ctx, models.WalletKey{UserID: "buyer", Currency: "USD"}, d("200"), "topup")
	require.NoError(t, err)

	_, err = f.svc.Fund(ctx, seller, o.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	funded, err := f.svc.Fund(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFunded, funded.State)
	av, es = f.balances(t, "buyer")
	assert.Equal(t, "0", av)
	assert.Equal(t, "300", es)

	_, err = f.svc.Fund(ctx, buyer, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestConfirmOnCreatedOrderIsInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.createdOrder(t)

	_, err := f.svc.ConfirmDelivery(ctx, buyer, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCreated, stored.State)
}

func TestTransitionTable(t *testing.T) {
	all := []models.OrderState{
		models.OrderCreated, models.OrderFunded, models.OrderDelivered, models.OrderCompleted,
		models.OrderCancelled, models.OrderDisputed, models.OrderRefunded,
	}
	for _, from := range all {
		if from.Terminal() {
			for _, to := range all {
				assert.False(t, canTransition(from, to), "%s is terminal but allows %s", from, to)
			}
		}
	}
	assert.True(t, canTransition(models.OrderCreated, models.OrderFunded))
	assert.False(t, canTransition(models.OrderCreated, models.OrderDelivered))
	assert.False(t, canTransition(models.OrderDelivered, models.OrderCancelled))

	o := &models.Order{ID: "o", State: models.OrderCompleted}
	assert.ErrorIs(t, advance(o, models.OrderRefunded), models.ErrInvalidTransition)
	assert.Equal(t, models.OrderCompleted, o.State)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("funded order releases escrow", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "buyer", "1000")
		o, err := f.svc.Checkout(ctx, buyer, "sword")
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, outsider, o.ID)
		assert.ErrorIs(t, err, models.ErrForbidden)

		o, err = f.svc.Cancel(ctx, seller, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderCancelled, o.State)
		av, es := f.balances(t, "buyer")
		assert.Equal(t, "1000", av)
		assert.Equal(t, "0", es)

		_, err = f.svc.Cancel(ctx, buyer, o.ID)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("created order has no balance effect", func(t *testing.T) {
		f := newFixture(t)
		o := f.createdOrder(t)
		o, err := f.svc.Cancel(ctx, buyer, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderCancelled, o.State)
		entries, err := f.ledger.Entries(ctx, models.WalletKey{UserID: "buyer", Currency: "USD"}, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("delivered order cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "buyer", "300")
		o, err := f.svc.Checkout(ctx, buyer, "sword")
		require.NoError(t, err)
		_, err = f.svc.MarkDelivered(ctx, seller, o.ID)
		require.NoError(t, err)
		_, err = f.svc.Cancel(ctx, admin, o.ID)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestDisputeResolution(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		outcome      models.DisputeOutcome
		state        models.OrderState
		buyerAvail   string
		sellerAvail  string
		notification alerts.EventType
	}{
		{models.OutcomeRelease, models.OrderCompleted, "700", "300", alerts.EventOrderCompleted},
		{models.OutcomeRefund, models.OrderRefunded, "1000", "0", alerts.EventOrderRefunded},
	} {
		t.Run(string(tc.outcome), func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, "buyer", "1000")
			o, err := f.svc.Checkout(ctx, buyer, "sword")
			require.NoError(t, err)

			_, err = f.svc.RaiseDispute(ctx, outsider, o.ID, "scam")
			assert.ErrorIs(t, err, models.ErrForbidden)

			dispute, err := f.svc.RaiseDispute(ctx, buyer, o.ID, "item never arrived")
			require.NoError(t, err)
			assert.Equal(t, models.DisputeOpen, dispute.Status)

			_, err = f.svc.RaiseDispute(ctx, seller, o.ID, "again")
			assert.ErrorIs(t, err, models.ErrInvalidTransition, "one open dispute per order")

			// disputed orders are frozen
			_, err = f.svc.ConfirmDelivery(ctx, buyer, o.ID)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
			_, err = f.svc.Cancel(ctx, buyer, o.ID)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)

			open, err := f.svc.OpenDisputes(ctx, admin)
			require.NoError(t, err)
			require.Len(t, open, 1)

			_, err = f.svc.ResolveDispute(ctx, buyer, o.ID, tc.outcome, "")
			assert.ErrorIs(t, err, models.ErrForbidden)

			resolved, err := f.svc.ResolveDispute(ctx, admin, o.ID, tc.outcome, "checked logs")
			require.NoError(t, err)
			assert.Equal(t, tc.state, resolved.State)

			av, es := f.balances(t, "buyer")
			assert.Equal(t, tc.buyerAvail, av)
			assert.Equal(t, "0", es)
			av, _ = f.balances(t, "seller")
			assert.Equal(t, tc.sellerAvail, av)

			open, err = f.svc.OpenDisputes(ctx, admin)
			require.NoError(t, err)
			assert.Empty(t, open)
			assert.Equal(t, 1, f.events.count(alerts.EventOrderDisputed))
			assert.Equal(t, 2, f.events.count(tc.notification))

			_, err = f.svc.ResolveDispute(ctx, admin, o.ID, tc.outcome, "")
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
		})
	}

	t.Run("bad outcome", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ResolveDispute(ctx, admin, "x", models.DisputeOutcome("split"), "")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestAutoConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("scheduled on delivery and completes", func(t *testing.T) {
		sched := &mockScheduler{}
		f := newFixture(t, WithAutoConfirm(sched, 72*time.Hour))
		f.fund(t, "buyer", "300")
		o, err := f.svc.Checkout(ctx, buyer, "sword")
		require.NoError(t, err)

		sched.On("ScheduleAutoConfirm", mock.Anything, o.ID, 72*time.Hour).Return(nil).Once()
		_, err = f.svc.MarkDelivered(ctx, seller, o.ID)
		require.NoError(t, err)
		sched.AssertExpectations(t)

		require.NoError(t, f.svc.AutoConfirm(ctx, o.ID))
		stored, err := f.store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderCompleted, stored.State)
		av, _ := f.balances(t, "seller")
		assert.Equal(t, "300", av)

		// a duplicate delivery of the task is harmless
		require.NoError(t, f.svc.AutoConfirm(ctx, o.ID))
		av, _ = f.balances(t, "seller")
		assert.Equal(t, "300", av)
	})

	t.Run("skipped once disputed", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "buyer", "300")
		o, err := f.svc.Checkout(ctx, buyer, "sword")
		require.NoError(t, err)
		_, err = f.svc.MarkDelivered(ctx, seller, o.ID)
		require.NoError(t, err)
		_, err = f.svc.RaiseDispute(ctx, buyer, o.ID, "wrong item")
		require.NoError(t, err)

		require.NoError(t, f.svc.AutoConfirm(ctx, o.ID))
		stored, err := f.store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderDisputed, stored.State)
		_, es := f.balances(t, "buyer")
		assert.Equal(t, "300", es)
	})

	t.Run("schedule failure does not undo delivery", func(t *testing.T) {
		sched := &mockScheduler{}
		f := newFixture(t, WithAutoConfirm(sched, time.Hour))
		f.fund(t, "buyer", "300")
		o, err := f.svc.Checkout(ctx, buyer, "sword")
		require.NoError(t, err)

		sched.On("ScheduleAutoConfirm", mock.Anything, o.ID, time.Hour).Return(assert.AnError)
		o, err = f.svc.MarkDelivered(ctx, seller, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderDelivered, o.State)
	})
}

func TestAttachReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "buyer", "300")
	o, err := f.svc.Checkout(ctx, buyer, "sword")
	require.NoError(t, err)

	_, err = f.svc.AttachReview(ctx, buyer, o.ID, "review-1")
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "not completed yet")

	_, err = f.svc.MarkDelivered(ctx, seller, o.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmDelivery(ctx, buyer, o.ID)
	require.NoError(t, err)

	_, err = f.svc.AttachReview(ctx, seller, o.ID, "review-1")
	assert.ErrorIs(t, err, models.ErrForbidden)

	reviewed, err := f.svc.AttachReview(ctx, buyer, o.ID, "review-1")
	require.NoError(t, err)
	assert.Equal(t, "review-1", reviewed.ReviewID)
	assert.Equal(t, models.OrderCompleted, reviewed.State)

	_, err = f.svc.AttachReview(ctx, buyer, o.ID, "review-2")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestConcurrentCheckoutsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "buyer", "1000")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		funded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.svc.Checkout(ctx, buyer, "sword")
			if err == nil {
				mu.Lock()
				funded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrInsufficientFunds)
			if assert.NotNil(t, o) {
				assert.Equal(t, models.OrderCreated, o.State)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, funded)
	av, es := f.balances(t, "buyer")
	assert.Equal(t, "100", av)
	assert.Equal(t, "900", es)
}

// =========================
// HTTP
// =========================

func newRouter(svc *Service, p authz.Principal) *echo.Echo {
	e := echo.New()
	e.Validator = utils.NewRequestValidator()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authz.WithPrincipal(c, p)
			return next(c)
		}
	})
	h := NewHandler(svc)
	e.POST("/orders", h.Checkout)
	e.GET("/orders/:id", h.Get)
	e.POST("/orders/:id/confirm", h.ConfirmDelivery)
	e.GET("/products/:id", h.Product)
	return e
}

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", "100")
	b := newRouter(f.svc, buyer)

	rec := serve(b, http.MethodPost, "/orders", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(b, http.MethodPost, "/orders", `{"product_id":"shield"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(b, http.MethodPost, "/orders", `{"product_id":"sword"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"created"`, "unfunded order is returned for a retry")

	assert.Zero(t, f.events.count(alerts.EventOrderFunded))

	rec = serve(b, http.MethodGet, "/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(b, http.MethodGet, "/products/sword", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display_price":"300"`)

	rec = serve(newRouter(f.svc, authz.Anonymous{}), http.MethodPost, "/orders", `{"product_id":"sword"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
