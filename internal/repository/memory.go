package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/stats"
)

// defaultOutboxLimit ограничивает outbox в памяти, когда события никто не забирает.
const defaultOutboxLimit = 10000

type outboxEntry struct {
	record    events.Record
	published bool
}

// MemoryRepository хранит данные в памяти процесса. Используется без DATABASE_URI и в тестах.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[string]*model.Appointment
	activeSlots  map[model.SlotKey]string
	orders       map[string]*model.Order
	orderNumbers map[string]string
	users        map[string]model.User
	products     map[string]model.Product
	categories   map[string]model.Category
	outbox       []outboxEntry
	outboxLimit  int
	seq          int64

	publishMu sync.Mutex
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[string]*model.Appointment),
		activeSlots:  make(map[model.SlotKey]string),
		orders:       make(map[string]*model.Order),
		orderNumbers: make(map[string]string),
		users:        make(map[string]model.User),
		products:     make(map[string]model.Product),
		categories:   make(map[string]model.Category),
		outboxLimit:  defaultOutboxLimit,
	}
}

// Ping всегда успешен.
func (m *MemoryRepository) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (m *MemoryRepository) Close() error { return nil }

// AddUser добавляет или заменяет пользователя.
func (m *MemoryRepository) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddCategory добавляет или заменяет категорию.
func (m *MemoryRepository) AddCategory(c model.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
}

// AddProduct добавляет или заменяет товар.
func (m *MemoryRepository) AddProduct(p model.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// appendEvents дописывает события в outbox. При переполнении отбрасываются самые старые.
func (m *MemoryRepository) appendEvents(evs []events.Event) {
	for _, e := range evs {
		m.seq++
		m.outbox = append(m.outbox, outboxEntry{record: events.Record{Seq: m.seq, Event: e}})
	}
	if over := len(m.outbox) - m.outboxLimit; over > 0 {
		m.outbox = slices.Delete(m.outbox, 0, over)
	}
}

// InsertAppointment резервирует слот в индексе активных записей и сохраняет запись под одной блокировкой.
func (m *MemoryRepository) InsertAppointment(_ context.Context, a *model.Appointment, evs ...events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.appointments[a.ID]; ok {
		return fmt.Errorf("%w: appointment %s", model.ErrConflict, a.ID)
	}

	key := a.SlotKey()
	if a.Status.Active() {
		if owner, taken := m.activeSlots[key]; taken && owner != a.ID {
			return fmt.Errorf("%w: %s", model.ErrSlotUnavailable, key)
		}
		m.activeSlots[key] = a.ID
	}

	m.appointments[a.ID] = a.Clone()
	m.appendEvents(evs)
	return nil
}

// GetAppointment возвращает копию записи.
func (m *MemoryRepository) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
	}
	return a.Clone(), nil
}

// UpdateAppointment сохраняет запись при совпадении версии и освобождает слот, если запись вышла из активных статусов.
func (m *MemoryRepository) UpdateAppointment(_ context.Context, a *model.Appointment, expectedVersion int64, evs ...events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.appointments[a.ID]
	if !ok {
		return fmt.Errorf("%w: appointment %s", model.ErrNotFound, a.ID)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("%w: appointment %s", model.ErrConflict, a.ID)
	}

	key := cur.SlotKey()
	if cur.Status.Active() && !a.Status.Active() && m.activeSlots[key] == a.ID {
		delete(m.activeSlots, key)
	}

	a.Version = expectedVersion + 1
	m.appointments[a.ID] = a.Clone()
	m.appendEvents(evs)
	return nil
}

// ListAppointments возвращает записи по фильтру, новые сверху.
func (m *MemoryRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.Appointment
	for _, a := range m.appointments {
		if f.CustomerID != "" && a.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.ServiceType != "" && a.ServiceType != f.ServiceType {
			continue
		}
		if f.Date != nil && a.Date.Format(model.DateLayout) != f.Date.Format(model.DateLayout) {
			continue
		}
		res = append(res, *a.Clone())
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})

	if limit := normalizeLimit(f.Limit); len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// TakenSlots возвращает занятые слоты даты по индексу активных записей.
func (m *MemoryRepository) TakenSlots(_ context.Context, date time.Time, serviceType model.ServiceType) ([]model.TimeSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := date.Format(model.DateLayout)
	var res []model.TimeSlot
	for k := range m.activeSlots {
		if k.Date == d && k.ServiceType == serviceType {
			res = append(res, k.TimeSlot)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res, nil
}

// InsertOrder сохраняет новый заказ; номер заказа уникален.
func (m *MemoryRepository) InsertOrder(_ context.Context, o *model.Order, evs ...events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orderNumbers[o.Number]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.Number)
	}
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s", model.ErrConflict, o.ID)
	}

	m.orders[o.ID] = o.Clone()
	m.orderNumbers[o.Number] = o.ID
	m.appendEvents(evs)
	return nil
}

// GetOrder возвращает копию заказа.
func (m *MemoryRepository) GetOrder(_ context.Context, id string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", model.ErrNotFound, id)
	}
	return o.Clone(), nil
}

// GetOrderByNumber возвращает копию заказа по номеру.
func (m *MemoryRepository) GetOrderByNumber(_ context.Context, number string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.orderNumbers[number]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", model.ErrNotFound, number)
	}
	return m.orders[id].Clone(), nil
}

// UpdateOrder сохраняет заказ при совпадении версии.
func (m *MemoryRepository) UpdateOrder(_ context.Context, o *model.Order, expectedVersion int64, evs ...events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", model.ErrNotFound, o.ID)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("%w: order %s", model.ErrConflict, o.ID)
	}

	o.Version = expectedVersion + 1
	m.orders[o.ID] = o.Clone()
	m.appendEvents(evs)
	return nil
}

// ListOrders возвращает заказы по фильтру, новые сверху.
func (m *MemoryRepository) ListOrders(_ context.Context, f OrderFilter) ([]model.Order, error) {
	return m.filterOrders(normalizeLimit(f.Limit), func(o *model.Order) bool {
		return (f.UserID == "" || o.UserID == f.UserID) &&
			(f.Status == "" || o.Status == f.Status) &&
			(f.PaymentStatus == "" || o.PaymentStatus == f.PaymentStatus)
	}), nil
}

// OrdersAwaitingGateway возвращает заказы, оплату которых должен подтвердить платёжный шлюз.
func (m *MemoryRepository) OrdersAwaitingGateway(_ context.Context, limit int) ([]model.Order, error) {
	return m.filterOrders(normalizeLimit(limit), func(o *model.Order) bool {
		return o.PaymentStatus == model.PaymentAwaitingPayment &&
			o.PaymentMethod.GatewaySettled() &&
			o.Status != model.OrderCancelled && o.Status != model.OrderRefunded
	}), nil
}

func (m *MemoryRepository) filterOrders(limit int, keep func(o *model.Order) bool) []model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.Order
	for _, o := range m.orders {
		if keep(o) {
			res = append(res, *o.Clone())
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})

	if len(res) > limit {
		res = res[:limit]
	}
	return res
}

// GetProducts возвращает товары каталога по идентификаторам.
func (m *MemoryRepository) GetProducts(_ context.Context, ids []string) (map[string]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

// Snapshot копирует срез данных для дашборда под одной блокировкой чтения.
func (m *MemoryRepository) Snapshot(_ context.Context, since, until time.Time) (stats.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s stats.Snapshot
	for _, u := range m.users {
		if u.CreatedAt.Before(until) {
			s.Users = append(s.Users, u)
		}
	}
	for _, p := range m.products {
		s.Products = append(s.Products, p)
	}
	for _, c := range m.categories {
		s.Categories = append(s.Categories, c)
	}
	for _, o := range m.orders {
		if !o.CreatedAt.Before(since) && o.CreatedAt.Before(until) {
			s.Orders = append(s.Orders, *o.Clone())
		}
	}
	for _, a := range m.appointments {
		if !a.CreatedAt.Before(since) && a.CreatedAt.Before(until) {
			s.Appointments = append(s.Appointments, *a.Clone())
		}
	}

	sort.Slice(s.Users, func(i, j int) bool { return s.Users[i].ID < s.Users[j].ID })
	sort.Slice(s.Products, func(i, j int) bool { return s.Products[i].ID < s.Products[j].ID })
	sort.Slice(s.Categories, func(i, j int) bool { return s.Categories[i].ID < s.Categories[j].ID })
	sort.Slice(s.Orders, func(i, j int) bool { return s.Orders[i].ID < s.Orders[j].ID })
	sort.Slice(s.Appointments, func(i, j int) bool { return s.Appointments[i].ID < s.Appointments[j].ID })

	return s, nil
}

// StreamUsers передаёт в fn пользователей в порядке регистрации.
func (m *MemoryRepository) StreamUsers(_ context.Context, fn func(model.User) error) error {
	m.mu.RLock()
	users := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	m.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})

	for _, u := range users {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

// StreamProducts передаёт в fn товары каталога.
func (m *MemoryRepository) StreamProducts(_ context.Context, fn func(model.Product) error) error {
	m.mu.RLock()
	products := make([]model.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	m.mu.RUnlock()

	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.Before(products[j].CreatedAt)
		}
		return products[i].ID < products[j].ID
	})

	for _, p := range products {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// StreamOrders передаёт в fn заказы, созданные в интервале [from, to), в порядке создания.
func (m *MemoryRepository) StreamOrders(_ context.Context, from, to time.Time, fn func(model.Order) error) error {
	m.mu.RLock()
	var orders []model.Order
	for _, o := range m.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			orders = append(orders, *o.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})

	for _, o := range orders {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

// PublishPending передаёт в fn пачку неотправленных событий и помечает их отправленными при успехе.
func (m *MemoryRepository) PublishPending(ctx context.Context, limit int, fn func(ctx context.Context, records []events.Record) error) (int, error) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.RLock()
	var records []events.Record
	for _, e := range m.outbox {
		if len(records) == limit {
			break
		}
		if !e.published {
			records = append(records, e.record)
		}
	}
	m.mu.RUnlock()

	if len(records) == 0 {
		return 0, nil
	}

	if err := fn(ctx, records); err != nil {
		return 0, err
	}

	// Пока fn работал, начало outbox могло быть отброшено, поэтому отметки ставятся по Seq.
	sent := make(map[int64]struct{}, len(records))
	for _, r := range records {
		sent[r.Seq] = struct{}{}
	}

	m.mu.Lock()
	for i := range m.outbox {
		if _, ok := sent[m.outbox[i].record.Seq]; ok {
			m.outbox[i].published = true
		}
	}
	done := 0
	for done < len(m.outbox) && m.outbox[done].published {
		done++
	}
	m.outbox = slices.Delete(m.outbox, 0, done)
	m.mu.Unlock()

	return len(records), nil
}

// Events возвращает события, ещё хранящиеся в outbox, в порядке записи.
func (m *MemoryRepository) Events() []events.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]events.Event, 0, len(m.outbox))
	for _, e := range m.outbox {
		res = append(res, e.record.Event)
	}
	return res
}
