// Package service реализует бизнес-логику записи на услуги, заказов и дашборда зоомагазина.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/paymentgw"
	"github.com/mmeshcher/petcare-system/internal/repository"
	"github.com/mmeshcher/petcare-system/internal/stats"
)

// AppointmentStore описывает хранилище записей. InsertAppointment атомарно резервирует слот.
type AppointmentStore interface {
	InsertAppointment(ctx context.Context, a *model.Appointment, evs ...events.Event) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	UpdateAppointment(ctx context.Context, a *model.Appointment, expectedVersion int64, evs ...events.Event) error
	ListAppointments(ctx context.Context, f repository.AppointmentFilter) ([]model.Appointment, error)
	TakenSlots(ctx context.Context, date time.Time, serviceType model.ServiceType) ([]model.TimeSlot, error)
}

// OrderStore описывает хранилище заказов.
type OrderStore interface {
	InsertOrder(ctx context.Context, o *model.Order, evs ...events.Event) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order, expectedVersion int64, evs ...events.Event) error
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
	OrdersAwaitingGateway(ctx context.Context, limit int) ([]model.Order, error)
}

// ReadStore описывает чтение каталога, снимков для дашборда и потоковую выгрузку.
type ReadStore interface {
	GetProducts(ctx context.Context, ids []string) (map[string]model.Product, error)
	Snapshot(ctx context.Context, since, until time.Time) (stats.Snapshot, error)
	StreamUsers(ctx context.Context, fn func(model.User) error) error
	StreamProducts(ctx context.Context, fn func(model.Product) error) error
	StreamOrders(ctx context.Context, from, to time.Time, fn func(model.Order) error) error
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	AppointmentStore
	OrderStore
	ReadStore
	Ping(ctx context.Context) error
	Close() error
}

// Gateway сообщает об оплате картой и электронным кошельком.
type Gateway interface {
	GetTransaction(ctx context.Context, number string) (*paymentgw.Transaction, error)
}

// Config задаёт параметры расчёта заказов и фоновых процессов.
type Config struct {
	ShippingFee           int64
	FreeShippingThreshold int64
	Location              *time.Location
	SyncInterval          time.Duration
	SyncBatchSize         int
}

// Service содержит бизнес-логику сервиса.
type Service struct {
	repo    Repository
	gateway Gateway
	cfg     Config
	now     func() time.Time
	newID   func() string
	logger  *zap.Logger

	orderNumber func(now time.Time) string
}

// Option настраивает сервис при создании.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGateway подключает платёжный шлюз.
func WithGateway(g Gateway) Option {
	return func(s *Service) { s.gateway = g }
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithOrderNumbers подменяет генератор номеров заказов.
func WithOrderNumbers(fn func(now time.Time) string) Option {
	return func(s *Service) { s.orderNumber = fn }
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, cfg Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Second
	}
	if cfg.SyncBatchSize <= 0 {
		cfg.SyncBatchSize = 100
	}

	s := &Service{
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop(),

		orderNumber: RandomOrderNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) clock() time.Time {
	return s.now().In(s.cfg.Location)
}

func statusEvent(t events.Type, aggregate, id, number, from, to, note string, actor model.Actor, at time.Time) events.Event {
	return events.New(t, aggregate, id, at, events.StatusPayload{
		ID:        id,
		Number:    number,
		From:      from,
		To:        to,
		Note:      note,
		ActorID:   actor.ID,
		ActorRole: string(actor.Role),
		At:        at,
	})
}
