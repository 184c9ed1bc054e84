package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/model"
)

var (
	testNow  = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	testDate = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	customer = model.Actor{ID: "u1", Role: model.RoleCustomer}
	staff    = model.Actor{ID: "s1", Role: model.RoleStaff}
)

func newAppointment(id string, slot model.TimeSlot) *model.Appointment {
	return model.NewAppointment(model.Appointment{
		ID:          id,
		CustomerID:  customer.ID,
		PetID:       "pet1",
		ServiceType: model.ServiceGrooming,
		Date:        testDate,
		TimeSlot:    slot,
		Price:       200000,
	}, testNow, customer)
}

func TestMemoryInsertAppointmentRejectsTakenSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.InsertAppointment(ctx, newAppointment("a1", "09:00-10:00")))

	err := repo.InsertAppointment(ctx, newAppointment("a2", "09:00-10:00"))
	require.ErrorIs(t, err, model.ErrSlotUnavailable)

	_, err = repo.GetAppointment(ctx, "a2")
	assert.ErrorIs(t, err, model.ErrNotFound)

	other := newAppointment("a3", "09:00-10:00")
	other.ServiceType = model.ServiceSpa
	assert.NoError(t, repo.InsertAppointment(ctx, other))
}

func TestMemoryConcurrentBookingHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := newAppointment(string(rune('A'+i)), "10:00-11:00")
			err := repo.InsertAppointment(ctx, a)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, model.ErrSlotUnavailable):
				losers++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, losers)
}

func TestMemoryCancelReleasesSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a := newAppointment("a1", "14:00-15:00")
	require.NoError(t, repo.InsertAppointment(ctx, a))

	taken, err := repo.TakenSlots(ctx, testDate, model.ServiceGrooming)
	require.NoError(t, err)
	assert.Equal(t, []model.TimeSlot{"14:00-15:00"}, taken)

	require.NoError(t, a.Transition(model.AppointmentCancelled, testNow.Add(time.Hour), "sick", customer))
	require.NoError(t, repo.UpdateAppointment(ctx, a, 1))
	assert.Equal(t, int64(2), a.Version)

	taken, err = repo.TakenSlots(ctx, testDate, model.ServiceGrooming)
	require.NoError(t, err)
	assert.Empty(t, taken)

	assert.NoError(t, repo.InsertAppointment(ctx, newAppointment("a2", "14:00-15:00")))
}

func TestMemoryUpdateAppointmentVersionCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a := newAppointment("a1", "08:00-09:00")
	require.NoError(t, repo.InsertAppointment(ctx, a))

	first, err := repo.GetAppointment(ctx, "a1")
	require.NoError(t, err)
	second, err := repo.GetAppointment(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, first.Transition(model.AppointmentConfirmed, testNow, "", staff))
	require.NoError(t, repo.UpdateAppointment(ctx, first, second.Version))

	require.NoError(t, second.Transition(model.AppointmentCancelled, testNow, "late", staff))
	err = repo.UpdateAppointment(ctx, second, second.Version)
	assert.ErrorIs(t, err, model.ErrConflict)

	missing := newAppointment("nope", "08:00-09:00")
	assert.ErrorIs(t, repo.UpdateAppointment(ctx, missing, 1), model.ErrNotFound)

	stored, err := repo.GetAppointment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentConfirmed, stored.Status)
	assert.Len(t, stored.History, 2)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.InsertAppointment(ctx, newAppointment("a1", "08:00-09:00")))

	got, err := repo.GetAppointment(ctx, "a1")
	require.NoError(t, err)
	got.History[0].Note = "tampered"
	got.Status = model.AppointmentCompleted

	again, err := repo.GetAppointment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentPending, again.Status)
	assert.Empty(t, again.History[0].Note)
}

func TestMemoryListAppointmentsFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a1 := newAppointment("a1", "08:00-09:00")
	a2 := newAppointment("a2", "09:00-10:00")
	a2.CreatedAt = testNow.Add(time.Minute)
	a3 := newAppointment("a3", "10:00-11:00")
	a3.CustomerID = "u2"
	for _, a := range []*model.Appointment{a1, a2, a3} {
		require.NoError(t, repo.InsertAppointment(ctx, a))
	}

	got, err := repo.ListAppointments(ctx, AppointmentFilter{CustomerID: customer.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].ID)
	assert.Equal(t, "a1", got[1].ID)

	got, err = repo.ListAppointments(ctx, AppointmentFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func newOrder(t *testing.T, id, number string) *model.Order {
	t.Helper()
	o, err := model.NewOrder(model.Order{
		ID:            id,
		Number:        number,
		UserID:        customer.ID,
		Items:         []model.OrderItem{{ProductID: "p1", Name: "Food", Quantity: 2, UnitPrice: 100}},
		PaymentMethod: model.PaymentCreditCard,
		PaymentStatus: model.PaymentAwaitingPayment,
	}, testNow, customer)
	require.NoError(t, err)
	return o
}

func TestMemoryOrders(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.InsertOrder(ctx, newOrder(t, "o1", "PC1")))

	err := repo.InsertOrder(ctx, newOrder(t, "o2", "PC1"))
	assert.ErrorIs(t, err, ErrDuplicateOrderNumber)

	byNumber, err := repo.GetOrderByNumber(ctx, "PC1")
	require.NoError(t, err)
	assert.Equal(t, "o1", byNumber.ID)

	_, err = repo.GetOrderByNumber(ctx, "PC2")
	assert.ErrorIs(t, err, model.ErrNotFound)

	awaiting, err := repo.OrdersAwaitingGateway(ctx, 10)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)

	require.NoError(t, byNumber.SetPaymentStatus(model.PaymentPaid, testNow))
	require.NoError(t, repo.UpdateOrder(ctx, byNumber, 1))

	awaiting, err = repo.OrdersAwaitingGateway(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	assert.ErrorIs(t, repo.UpdateOrder(ctx, byNumber, 1), model.ErrConflict)
}

func TestMemorySnapshotRange(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	repo.AddUser(model.User{ID: "u1", CreatedAt: testNow.Add(-time.Hour)})
	repo.AddUser(model.User{ID: "u2", CreatedAt: testNow.Add(time.Hour)})
	repo.AddProduct(model.Product{ID: "p1"})
	repo.AddCategory(model.Category{ID: "c1"})

	early := newOrder(t, "o1", "PC1")
	late := newOrder(t, "o2", "PC2")
	late.CreatedAt = testNow.Add(2 * time.Hour)
	require.NoError(t, repo.InsertOrder(ctx, early))
	require.NoError(t, repo.InsertOrder(ctx, late))

	s, err := repo.Snapshot(ctx, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	require.NoError(t, err)

	assert.Len(t, s.Users, 1)
	assert.Len(t, s.Products, 1)
	assert.Len(t, s.Categories, 1)
	require.Len(t, s.Orders, 1)
	assert.Equal(t, "o1", s.Orders[0].ID)
}

func TestMemoryStreamOrdersStopsOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for i, n := range []string{"PC1", "PC2", "PC3"} {
		o := newOrder(t, n, n)
		o.CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.InsertOrder(ctx, o))
	}

	stop := errors.New("stop")
	var seen []string
	err := repo.StreamOrders(ctx, testNow, testNow.Add(time.Hour), func(o model.Order) error {
		seen = append(seen, o.ID)
		if len(seen) == 2 {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"PC1", "PC2"}, seen)
}

func TestMemoryPublishPending(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	ev := events.New(events.AppointmentBooked, events.AggregateAppointment, "a1", testNow, events.StatusPayload{ID: "a1"})
	require.NoError(t, repo.InsertAppointment(ctx, newAppointment("a1", "08:00-09:00"), ev))

	_, err := repo.PublishPending(ctx, 10, func(context.Context, []events.Record) error {
		return errors.New("broker down")
	})
	require.Error(t, err)

	var got []events.Record
	n, err := repo.PublishPending(ctx, 10, func(_ context.Context, records []events.Record) error {
		got = records
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, ev.ID, got[0].ID)
	assert.Equal(t, int64(1), got[0].Seq)

	n, err = repo.PublishPending(ctx, 10, func(context.Context, []events.Record) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryOutboxDropsPublishedEvents(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for i, slot := range []model.TimeSlot{"08:00-09:00", "09:00-10:00", "10:00-11:00"} {
		id := fmt.Sprintf("a%d", i+1)
		ev := events.New(events.AppointmentBooked, events.AggregateAppointment, id, testNow, events.StatusPayload{ID: id})
		require.NoError(t, repo.InsertAppointment(ctx, newAppointment(id, slot), ev))
	}

	n, err := repo.PublishPending(ctx, 2, func(context.Context, []events.Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left := repo.Events()
	require.Len(t, left, 1)
	assert.Equal(t, "a3", left[0].AggregateID)

	var seqs []int64
	_, err = repo.PublishPending(ctx, 10, func(_ context.Context, records []events.Record) error {
		for _, r := range records {
			seqs = append(seqs, r.Seq)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, seqs)
	assert.Empty(t, repo.Events())
}

func TestMemoryOutboxLimitDropsOldest(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	repo.outboxLimit = 2

	for i, slot := range []model.TimeSlot{"08:00-09:00", "09:00-10:00", "10:00-11:00"} {
		id := fmt.Sprintf("a%d", i+1)
		ev := events.New(events.AppointmentBooked, events.AggregateAppointment, id, testNow, events.StatusPayload{ID: id})
		require.NoError(t, repo.InsertAppointment(ctx, newAppointment(id, slot), ev))
	}

	got := repo.Events()
	if len(got) != 2 {
		t.Fatalf("expected outbox to hold 2 events, got %d", len(got))
	}
	assert.Equal(t, "a2", got[0].AggregateID)
	assert.Equal(t, "a3", got[1].AggregateID)
}
