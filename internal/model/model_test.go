package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var staff = Actor{ID: "staff-1", Role: RoleStaff}

func TestAppointmentTransitions(t *testing.T) {
	all := []AppointmentStatus{AppointmentPending, AppointmentConfirmed, AppointmentInProgress, AppointmentCompleted, AppointmentCancelled}
	allowed := map[AppointmentStatus]map[AppointmentStatus]bool{
		AppointmentPending:    {AppointmentConfirmed: true, AppointmentCancelled: true},
		AppointmentConfirmed:  {AppointmentInProgress: true, AppointmentCancelled: true},
		AppointmentInProgress: {AppointmentCompleted: true, AppointmentCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestAppointmentHistoryMirrorsStatus(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := NewAppointment(Appointment{ID: "a1", Notes: "first visit"}, at, staff)

	require.Equal(t, AppointmentPending, a.Status)
	require.Len(t, a.History, 1)

	require.NoError(t, a.Transition(AppointmentConfirmed, at.Add(time.Minute), "ok", staff))
	require.NoError(t, a.Transition(AppointmentInProgress, at.Add(2*time.Minute), "", staff))

	err := a.Transition(AppointmentPending, at.Add(3*time.Minute), "", staff)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.Len(t, a.History, 3)
	last := a.History[len(a.History)-1]
	assert.Equal(t, string(a.Status), last.Status)
	assert.Equal(t, a.UpdatedAt, last.At)
	assert.NotNil(t, a.StartedAt)
}

func TestAppointmentTerminalRejectsEverything(t *testing.T) {
	at := time.Now()
	a := NewAppointment(Appointment{ID: "a1"}, at, staff)
	require.NoError(t, a.Transition(AppointmentCancelled, at, "sick", staff))

	for _, next := range []AppointmentStatus{AppointmentPending, AppointmentConfirmed, AppointmentInProgress, AppointmentCompleted, AppointmentCancelled} {
		err := a.Transition(next, at, "x", staff)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Len(t, a.History, 2)
	assert.Equal(t, "sick", a.CancelReason)
}

func TestActiveStatusesHoldSlot(t *testing.T) {
	active := map[AppointmentStatus]bool{
		AppointmentPending:    true,
		AppointmentConfirmed:  true,
		AppointmentInProgress: true,
		AppointmentCompleted:  false,
		AppointmentCancelled:  false,
	}
	for status, want := range active {
		assert.Equal(t, want, status.Active(), status)
		if want == status.Terminal() {
			t.Fatalf("status %s: active and terminal must be exclusive", status)
		}
	}
	assert.Len(t, ActiveAppointmentStatuses, 3)
}

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderPending, OrderConfirmed, true},
		{OrderPending, OrderProcessing, false},
		{OrderConfirmed, OrderProcessing, true},
		{OrderProcessing, OrderShipping, true},
		{OrderShipping, OrderDelivered, true},
		{OrderShipping, OrderCancelled, true},
		{OrderProcessing, OrderRefunded, true},
		{OrderDelivered, OrderCancelled, false},
		{OrderDelivered, OrderRefunded, false},
		{OrderCancelled, OrderPending, false},
		{OrderRefunded, OrderCancelled, false},
		{OrderConfirmed, OrderPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderConfirmRequiresPaymentUnlessCOD(t *testing.T) {
	at := time.Now()
	tests := []struct {
		name    string
		method  PaymentMethod
		payment PaymentStatus
		ok      bool
	}{
		{"cod pending", PaymentCOD, PaymentPending, true},
		{"cod failed", PaymentCOD, PaymentFailed, false},
		{"transfer pending", PaymentBankTransfer, PaymentPending, false},
		{"transfer awaiting", PaymentBankTransfer, PaymentAwaitingPayment, false},
		{"transfer paid", PaymentBankTransfer, PaymentPaid, true},
		{"card failed", PaymentCreditCard, PaymentFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrder(Order{
				Items:         []OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 100}},
				PaymentMethod: tt.method,
				PaymentStatus: tt.payment,
			}, at, staff)
			require.NoError(t, err)

			err = o.Transition(OrderConfirmed, at, "", staff)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, OrderConfirmed, o.Status)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, OrderPending, o.Status)
			}
		})
	}
}

func TestPaymentTransitions(t *testing.T) {
	o := &Order{PaymentStatus: PaymentPending}
	at := time.Now()

	require.NoError(t, o.SetPaymentStatus(PaymentAwaitingPayment, at))
	require.NoError(t, o.SetPaymentStatus(PaymentPaid, at))
	require.ErrorIs(t, o.SetPaymentStatus(PaymentPaid, at), ErrAlreadyPaid)
	require.ErrorIs(t, o.SetPaymentStatus(PaymentFailed, at), ErrInvalidTransition)
	require.NoError(t, o.SetPaymentStatus(PaymentRefunded, at))
	require.ErrorIs(t, o.SetPaymentStatus(PaymentPending, at), ErrInvalidTransition)

	f := &Order{PaymentStatus: PaymentFailed}
	require.ErrorIs(t, f.SetPaymentStatus(PaymentPaid, at), ErrInvalidTransition)
	require.NoError(t, f.SetPaymentStatus(PaymentPending, at))
}

func TestOrderTotals(t *testing.T) {
	o, err := NewOrder(Order{
		Items: []OrderItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: 200000},
			{ProductID: "p2", Quantity: 1, UnitPrice: 100000},
		},
		ShippingFee: 30000,
	}, time.Now(), staff)
	require.NoError(t, err)

	assert.Equal(t, int64(500000), o.Subtotal)
	assert.Equal(t, int64(530000), o.Total)
	assert.True(t, o.TotalsConsistent())

	_, err = NewOrder(Order{
		Items:       []OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 100}},
		ShippingFee: 0,
		Discount:    101,
	}, time.Now(), staff)
	require.ErrorIs(t, err, ErrValidation)

	_, err = NewOrder(Order{Items: []OrderItem{{ProductID: "p1", Quantity: 0, UnitPrice: 100}}}, time.Now(), staff)
	require.ErrorIs(t, err, ErrValidation)
}

func TestOrderCloneIsDeep(t *testing.T) {
	o, err := NewOrder(Order{Items: []OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 1}}}, time.Now(), staff)
	require.NoError(t, err)

	c := o.Clone()
	c.Items[0].Quantity = 9
	c.History[0].Note = "changed"

	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, "order placed", o.History[0].Note)
}
