package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/repository"
	"github.com/mmeshcher/petcare-system/internal/validation"
)

const orderNumberAttempts = 5

// CheckoutItem описывает позицию корзины.
type CheckoutItem struct {
	ProductID string
	Quantity  int
}

// CheckoutRequest описывает оформление заказа.
type CheckoutRequest struct {
	UserID          string
	Items           []CheckoutItem
	ShippingAddress model.ShippingAddress
	PaymentMethod   model.PaymentMethod
	Discount        int64
}

// Checkout оформляет заказ: снимки товаров берутся из каталога, суммы и номер вычисляются здесь.
func (s *Service) Checkout(ctx context.Context, actor model.Actor, req CheckoutRequest) (*model.Order, error) {
	if actor.Role == model.RoleCustomer || req.UserID == "" {
		req.UserID = actor.ID
	}
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	var subtotal int64
	for _, it := range req.Items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %s", model.ErrValidation, it.ProductID)
		}
		item := model.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
			Image:     p.Image,
		}
		subtotal += item.LineTotal()
		items = append(items, item)
	}

	paymentStatus := model.PaymentPending
	if req.PaymentMethod == model.PaymentCreditCard {
		paymentStatus = model.PaymentAwaitingPayment
	}

	now := s.clock()
	draft := model.Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   paymentStatus,
		ShippingFee:     s.shippingFee(subtotal),
		Discount:        req.Discount,
	}

	for attempt := 1; ; attempt++ {
		draft.Number = s.orderNumber(now)

		o, err := model.NewOrder(draft, now, actor)
		if err != nil {
			return nil, err
		}

		ev := statusEvent(events.OrderPlaced, events.AggregateOrder, o.ID, o.Number, "", string(o.Status), "", actor, now)
		err = s.repo.InsertOrder(ctx, o, ev)
		if err == nil {
			s.logger.Info("order placed",
				zap.String("order_id", o.ID),
				zap.String("number", o.Number),
				zap.Int64("total", o.Total),
				zap.String("payment_method", string(o.PaymentMethod)),
			)
			return o, nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) || attempt == orderNumberAttempts {
			return nil, err
		}
		s.logger.Debug("order number collision, regenerating", zap.String("number", o.Number))
	}
}

func validateCheckout(req CheckoutRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order has no items", model.ErrValidation)
	}
	for _, it := range req.Items {
		if validation.IsBlank(it.ProductID) || it.Quantity < 1 {
			return fmt.Errorf("%w: invalid item %q", model.ErrValidation, it.ProductID)
		}
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", model.ErrValidation, req.PaymentMethod)
	}
	a := req.ShippingAddress
	if validation.IsBlank(a.FullName) || validation.IsBlank(a.Phone) || validation.IsBlank(a.Address) {
		return fmt.Errorf("%w: shipping name, phone and address are required", model.ErrValidation)
	}
	if req.Discount < 0 {
		return fmt.Errorf("%w: negative discount", model.ErrValidation)
	}
	return nil
}

func (s *Service) shippingFee(subtotal int64) int64 {
	if s.cfg.FreeShippingThreshold > 0 && subtotal >= s.cfg.FreeShippingThreshold {
		return 0
	}
	return s.cfg.ShippingFee
}

// RandomOrderNumber строит номер вида PC + YYMMDD + 6 случайных цифр + контрольная цифра Луна.
func RandomOrderNumber(now time.Time) string {
	digits := now.Format("060102") + fmt.Sprintf("%06d", rand.IntN(1_000_000))
	return model.OrderNumberPrefix + digits + string(validation.LuhnCheckDigit(digits))
}

// mutateOrder загружает заказ, проверяет доступ, применяет fn и сохраняет с проверкой версии.
// Покупателю доступны только собственные заказы и только операции с ownerAllowed.
func (s *Service) mutateOrder(
	ctx context.Context,
	actor model.Actor,
	id string,
	ownerAllowed bool,
	fn func(o *model.Order, now time.Time) ([]events.Event, error),
) (*model.Order, error) {
	if actor.Role == model.RoleCustomer && !ownerAllowed {
		return nil, fmt.Errorf("%w: operation requires staff role", model.ErrForbidden)
	}

	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleCustomer && o.UserID != actor.ID {
		return nil, fmt.Errorf("%w: order %s", model.ErrForbidden, id)
	}

	expected := o.Version
	now := s.clock()

	evs, err := fn(o, now)
	if err != nil {
		return nil, err
	}
	if !o.TotalsConsistent() {
		return nil, fmt.Errorf("%w: order %s totals are inconsistent", model.ErrValidation, id)
	}

	if err := s.repo.UpdateOrder(ctx, o, expected, evs...); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus переводит заказ по графу статусов.
// Отмена требует причину; возврат переводит оплаченный платёж в refunded;
// доставка наложенным платежом отмечает оплату полученной.
func (s *Service) UpdateStatus(ctx context.Context, actor model.Actor, id string, next model.OrderStatus, note string) (*model.Order, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", model.ErrValidation, next)
	}
	note = strings.TrimSpace(note)
	if next == model.OrderCancelled && note == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", model.ErrValidation)
	}

	ownerAllowed := next == model.OrderCancelled
	o, err := s.mutateOrder(ctx, actor, id, ownerAllowed, func(o *model.Order, now time.Time) ([]events.Event, error) {
		from := o.Status
		if err := o.Transition(next, now, note, actor); err != nil {
			return nil, err
		}

		evs := []events.Event{
			statusEvent(events.OrderStatusChanged, events.AggregateOrder, o.ID, o.Number, string(from), string(next), note, actor, now),
		}

		switch next {
		case model.OrderCancelled:
			evs = append(evs, statusEvent(events.OrderCancelled, events.AggregateOrder, o.ID, o.Number, string(from), string(next), note, actor, now))
		case model.OrderRefunded:
			if o.PaymentStatus == model.PaymentPaid {
				if err := o.SetPaymentStatus(model.PaymentRefunded, now); err != nil {
					return nil, err
				}
				ts := now
				o.Payment.RefundedAt = &ts
			}
			evs = append(evs, statusEvent(events.OrderRefunded, events.AggregateOrder, o.ID, o.Number, string(from), string(next), note, actor, now))
		case model.OrderDelivered:
			if o.PaymentMethod == model.PaymentCOD && o.PaymentStatus == model.PaymentPending {
				if err := o.SetPaymentStatus(model.PaymentPaid, now); err != nil {
					return nil, err
				}
				ts := now
				o.Payment.PaidAt = &ts
				evs = append(evs, statusEvent(events.PaymentConfirmed, events.AggregateOrder, o.ID, o.Number,
					string(model.PaymentPending), string(model.PaymentPaid), "cash collected on delivery", actor, now))
			}
		}
		return evs, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("to", string(next)),
		zap.String("actor", actor.ID),
	)
	return o, nil
}

// CancelOrder отменяет заказ с указанной причиной.
func (s *Service) CancelOrder(ctx context.Context, actor model.Actor, id, reason string) (*model.Order, error) {
	return s.UpdateStatus(ctx, actor, id, model.OrderCancelled, reason)
}

// ConfirmPayment подтверждает оплату заказа сотрудником или системой.
// Повторное подтверждение возвращает model.ErrAlreadyPaid и не меняет paidAt.
func (s *Service) ConfirmPayment(ctx context.Context, actor model.Actor, id, note string) (*model.Order, error) {
	return s.confirmPayment(ctx, actor, id, note, nil)
}

func (s *Service) confirmPayment(ctx context.Context, actor model.Actor, id, note string, details func(p *model.PaymentDetails)) (*model.Order, error) {
	o, err := s.mutateOrder(ctx, actor, id, false, func(o *model.Order, now time.Time) ([]events.Event, error) {
		if o.Status.Terminal() && o.Status != model.OrderDelivered {
			return nil, fmt.Errorf("%w: order %s is %s", model.ErrInvalidTransition, o.ID, o.Status)
		}
		from := o.PaymentStatus
		if err := o.SetPaymentStatus(model.PaymentPaid, now); err != nil {
			return nil, err
		}

		ts := now
		o.Payment.PaidAt = &ts
		o.Payment.VerifiedAt = &ts
		o.Payment.VerifiedBy = actor.ID
		if details != nil {
			details(&o.Payment)
		}

		return []events.Event{
			statusEvent(events.PaymentConfirmed, events.AggregateOrder, o.ID, o.Number, string(from), string(model.PaymentPaid), note, actor, now),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment confirmed", zap.String("order_id", o.ID), zap.String("actor", actor.ID))
	return o, nil
}

// FailPayment отмечает оплату неуспешной.
func (s *Service) FailPayment(ctx context.Context, actor model.Actor, id, reason string) (*model.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment failed"
	}

	return s.mutateOrder(ctx, actor, id, false, func(o *model.Order, now time.Time) ([]events.Event, error) {
		if o.PaymentStatus == model.PaymentPaid {
			return nil, fmt.Errorf("%w: order %s", model.ErrAlreadyPaid, o.ID)
		}
		from := o.PaymentStatus
		if err := o.SetPaymentStatus(model.PaymentFailed, now); err != nil {
			return nil, err
		}

		ts := now
		o.Payment.FailedAt = &ts
		o.Payment.FailureReason = reason

		return []events.Event{
			statusEvent(events.PaymentFailed, events.AggregateOrder, o.ID, o.Number, string(from), string(model.PaymentFailed), reason, actor, now),
		}, nil
	})
}

// RetryPayment возвращает неуспешную оплату в pending. Для карты оплата сразу ожидает шлюз.
func (s *Service) RetryPayment(ctx context.Context, actor model.Actor, id string) (*model.Order, error) {
	return s.mutateOrder(ctx, actor, id, true, func(o *model.Order, now time.Time) ([]events.Event, error) {
		if o.Status.Terminal() {
			return nil, fmt.Errorf("%w: order %s is %s", model.ErrInvalidTransition, o.ID, o.Status)
		}
		if err := o.SetPaymentStatus(model.PaymentPending, now); err != nil {
			return nil, err
		}
		if o.PaymentMethod == model.PaymentCreditCard {
			if err := o.SetPaymentStatus(model.PaymentAwaitingPayment, now); err != nil {
				return nil, err
			}
		}

		return []events.Event{
			statusEvent(events.PaymentRetried, events.AggregateOrder, o.ID, o.Number, string(model.PaymentFailed), string(o.PaymentStatus), "", actor, now),
		}, nil
	})
}

// QRPayment содержит данные для оплаты переводом по QR-коду.
type QRPayment struct {
	OrderNumber  string              `json:"order_number"`
	Method       model.PaymentMethod `json:"method"`
	Amount       int64               `json:"amount"`
	TransferCode string              `json:"transfer_code"`
	Payload      string              `json:"payload"`
}

// GenerateQRPayment переводит оплату в awaiting_payment и выдаёт код перевода.
// Повторный вызов сохраняет ранее выданный код.
func (s *Service) GenerateQRPayment(ctx context.Context, actor model.Actor, id string) (*QRPayment, error) {
	o, err := s.mutateOrder(ctx, actor, id, true, func(o *model.Order, now time.Time) ([]events.Event, error) {
		if !o.PaymentMethod.SupportsQR() {
			return nil, fmt.Errorf("%w: payment method %s does not support QR", model.ErrValidation, o.PaymentMethod)
		}
		if o.Status.Terminal() {
			return nil, fmt.Errorf("%w: order %s is %s", model.ErrInvalidTransition, o.ID, o.Status)
		}
		if o.PaymentStatus == model.PaymentPaid {
			return nil, fmt.Errorf("%w: order %s", model.ErrAlreadyPaid, o.ID)
		}

		from := o.PaymentStatus
		if err := o.SetPaymentStatus(model.PaymentAwaitingPayment, now); err != nil {
			return nil, err
		}
		if o.Payment.TransferCode == "" {
			o.Payment.TransferCode = transferCode(o.Number)
		}

		return []events.Event{
			statusEvent(events.PaymentAwaiting, events.AggregateOrder, o.ID, o.Number, string(from), string(model.PaymentAwaitingPayment), o.Payment.TransferCode, actor, now),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("code", o.Payment.TransferCode)
	q.Set("amount", strconv.FormatInt(o.Total, 10))
	q.Set("method", string(o.PaymentMethod))

	return &QRPayment{
		OrderNumber:  o.Number,
		Method:       o.PaymentMethod,
		Amount:       o.Total,
		TransferCode: o.Payment.TransferCode,
		Payload:      "petcare://pay?" + q.Encode(),
	}, nil
}

func transferCode(number string) string {
	return "TT" + strings.TrimPrefix(number, model.OrderNumberPrefix)
}

// ConfirmTransfer фиксирует, что покупатель сообщил о переводе. Статус оплаты не меняется до проверки сотрудником.
func (s *Service) ConfirmTransfer(ctx context.Context, actor model.Actor, id, proofRef string) (*model.Order, error) {
	if actor.Role != model.RoleCustomer {
		return nil, fmt.Errorf("%w: only the buyer can report a transfer", model.ErrForbidden)
	}

	return s.mutateOrder(ctx, actor, id, true, func(o *model.Order, now time.Time) ([]events.Event, error) {
		if o.PaymentStatus == model.PaymentPaid {
			return nil, fmt.Errorf("%w: order %s", model.ErrAlreadyPaid, o.ID)
		}
		if !o.PaymentMethod.SupportsQR() {
			return nil, fmt.Errorf("%w: payment method %s is not a transfer", model.ErrValidation, o.PaymentMethod)
		}
		if o.Status.Terminal() || o.PaymentStatus == model.PaymentFailed || o.PaymentStatus == model.PaymentRefunded {
			return nil, fmt.Errorf("%w: order %s payment is %s", model.ErrInvalidTransition, o.ID, o.PaymentStatus)
		}

		ts := now
		o.Payment.TransferClaimedAt = &ts
		if proofRef = strings.TrimSpace(proofRef); proofRef != "" {
			o.PaymentProof = proofRef
		}
		o.UpdatedAt = now

		return []events.Event{
			statusEvent(events.PaymentTransferClaimed, events.AggregateOrder, o.ID, o.Number, "", string(o.PaymentStatus), proofRef, actor, now),
		}, nil
	})
}

// GetOrder возвращает заказ. Покупатель видит только свои заказы.
func (s *Service) GetOrder(ctx context.Context, actor model.Actor, id string) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return checkOrderAccess(actor, o)
}

// GetOrderByNumber возвращает заказ по номеру; номер проверяется по контрольной цифре.
func (s *Service) GetOrderByNumber(ctx context.Context, actor model.Actor, number string) (*model.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !validation.IsValidOrderNumber(number) {
		return nil, fmt.Errorf("%w: invalid order number %q", model.ErrValidation, number)
	}
	o, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return checkOrderAccess(actor, o)
}

func checkOrderAccess(actor model.Actor, o *model.Order) (*model.Order, error) {
	if actor.Role == model.RoleCustomer && o.UserID != actor.ID {
		return nil, fmt.Errorf("%w: order %s", model.ErrForbidden, o.ID)
	}
	return o, nil
}

// ListOrders возвращает заказы по фильтру. Для покупателя фильтр ограничен его заказами.
func (s *Service) ListOrders(ctx context.Context, actor model.Actor, f repository.OrderFilter) ([]model.Order, error) {
	if actor.Role == model.RoleCustomer {
		f.UserID = actor.ID
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", model.ErrValidation, f.Status)
	}
	return s.repo.ListOrders(ctx, f)
}
