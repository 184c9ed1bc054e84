package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/paymentgw"
)

type stubGateway struct {
	byNumber map[string]*paymentgw.Transaction
	errs     map[string]error
	// once отдаёт ошибку только на первый запрос по номеру.
	once  map[string]error
	calls []string
}

func (g *stubGateway) GetTransaction(_ context.Context, number string) (*paymentgw.Transaction, error) {
	g.calls = append(g.calls, number)
	if err, ok := g.once[number]; ok {
		delete(g.once, number)
		return nil, err
	}
	if err, ok := g.errs[number]; ok {
		return nil, err
	}
	if tx, ok := g.byNumber[number]; ok {
		return tx, nil
	}
	return nil, paymentgw.ErrNotRegistered
}

func TestSyncPaymentsAppliesGatewayDecisions(t *testing.T) {
	gw := &stubGateway{byNumber: map[string]*paymentgw.Transaction{}, errs: map[string]error{}}
	f := newFixture(t, WithGateway(gw))
	ctx := context.Background()

	paid, err := f.svc.Checkout(ctx, alice, checkoutReq(model.PaymentCreditCard))
	require.NoError(t, err)
	declined, err := f.svc.Checkout(ctx, alice, checkoutReq(model.PaymentCreditCard))
	require.NoError(t, err)
	pending, err := f.svc.Checkout(ctx, alice, checkoutReq(model.PaymentCreditCard))
	require.NoError(t, err)
	limited, err := f.svc.Checkout(ctx, alice, checkoutReq(model.PaymentCreditCard))
	require.NoError(t, err)
	unknown, err := f.svc.Checkout(ctx, alice, checkoutReq(model.PaymentCreditCard))
	require.NoError(t, err)
	cod, err := f.svc.Checkout(ctx, alice, checkoutReq(model.PaymentCOD))
	require.NoError(t, err)

	gw.byNumber[paid.Number] = &paymentgw.Transaction{OrderNumber: paid.Number, Status: paymentgw.StatusPaid, CardLast4: "4242"}
	gw.byNumber[declined.Number] = &paymentgw.Transaction{OrderNumber: declined.Number, Status: paymentgw.StatusFailed, Reason: "insufficient funds"}
	gw.byNumber[pending.Number] = &paymentgw.Transaction{OrderNumber: pending.Number, Status: paymentgw.StatusPending}
	gw.errs[limited.Number] = &paymentgw.RateLimitError{}

	assert.Equal(t, 2, f.svc.SyncPayments(ctx))
	assert.NotContains(t, gw.calls, cod.Number)
	assert.Contains(t, gw.calls, unknown.Number)

	got, err := f.svc.GetOrder(ctx, staff, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "4242", got.Payment.CardLast4)
	assert.Equal(t, model.SystemActor.ID, got.Payment.VerifiedBy)

	got, err = f.svc.GetOrder(ctx, staff, declined.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, "insufficient funds", got.Payment.FailureReason)

	got, err = f.svc.GetOrder(ctx, staff, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentAwaitingPayment, got.PaymentStatus)

	gw.calls = nil
	assert.Equal(t, 0, f.svc.SyncPayments(ctx))
	assert.NotContains(t, gw.calls, paid.Number)
	assert.NotContains(t, gw.calls, declined.Number)
}

func TestSyncPaymentsRetriesRateLimitedOrder(t *testing.T) {
	gw := &stubGateway{byNumber: map[string]*paymentgw.Transaction{}, errs: map[string]error{}, once: map[string]error{}}
	f := newFixture(t, WithGateway(gw))
	ctx := context.Background()

	first, err := f.svc.Checkout(ctx, alice, checkoutReq(model.PaymentCreditCard))
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, alice, checkoutReq(model.PaymentEWallet))
	require.NoError(t, err)

	gw.byNumber[first.Number] = &paymentgw.Transaction{OrderNumber: first.Number, Status: paymentgw.StatusPaid, CardLast4: "1111"}
	gw.byNumber[second.Number] = &paymentgw.Transaction{OrderNumber: second.Number, Status: paymentgw.StatusPaid, WalletTransactionID: "w-9"}
	gw.once[first.Number] = &paymentgw.RateLimitError{RetryAfter: time.Millisecond}

	assert.Equal(t, 2, f.svc.SyncPayments(ctx))
	assert.ElementsMatch(t, []string{first.Number, first.Number, second.Number}, gw.calls)

	got, err := f.svc.GetOrder(ctx, staff, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "1111", got.Payment.CardLast4)
}

func TestSyncPaymentsStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	gw := &stubGateway{byNumber: map[string]*paymentgw.Transaction{}, errs: map[string]error{}}
	f := newFixture(t, WithGateway(gw))

	limited, err := f.svc.Checkout(context.Background(), alice, checkoutReq(model.PaymentCreditCard))
	require.NoError(t, err)
	gw.errs[limited.Number] = &paymentgw.RateLimitError{RetryAfter: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Equal(t, 0, f.svc.SyncPayments(ctx))
	assert.Equal(t, []string{limited.Number}, gw.calls)
}

func TestRunPaymentSyncWithoutGatewayReturns(t *testing.T) {
	f := newFixture(t)

	done := make(chan struct{})
	go func() {
		f.svc.RunPaymentSync(context.Background())
		close(done)
	}()
	<-done
}
