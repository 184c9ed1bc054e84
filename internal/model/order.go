package model

import (
	"fmt"
	"time"
)

// OrderStatus описывает статус исполнения заказа.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipping   OrderStatus = "shipping"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

var orderForward = map[OrderStatus]OrderStatus{
	OrderPending:    OrderConfirmed,
	OrderConfirmed:  OrderProcessing,
	OrderProcessing: OrderShipping,
	OrderShipping:   OrderDelivered,
}

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderProcessing, OrderShipping, OrderDelivered, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderRefunded
}

// CanTransitionTo проверяет наличие ребра в графе статусов заказа.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() || !s.Valid() {
		return false
	}
	if next == OrderCancelled || next == OrderRefunded {
		return true
	}
	return orderForward[s] == next
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentAwaitingPayment PaymentStatus = "awaiting_payment"
	PaymentPaid            PaymentStatus = "paid"
	PaymentFailed          PaymentStatus = "failed"
	PaymentRefunded        PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:         {PaymentAwaitingPayment, PaymentPaid, PaymentFailed},
	PaymentAwaitingPayment: {PaymentAwaitingPayment, PaymentPaid, PaymentFailed},
	PaymentFailed:          {PaymentPending},
	PaymentPaid:            {PaymentRefunded},
}

// CanTransitionTo проверяет наличие ребра в графе статусов оплаты.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, v := range paymentTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "cod"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentEWallet      PaymentMethod = "e_wallet"
)

// Valid сообщает, известен ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentBankTransfer, PaymentCreditCard, PaymentEWallet:
		return true
	}
	return false
}

// SupportsQR сообщает, можно ли оплатить заказ переводом по QR-коду.
func (m PaymentMethod) SupportsQR() bool {
	return m == PaymentBankTransfer || m == PaymentEWallet
}

// GatewaySettled сообщает, подтверждает ли оплату внешний платёжный шлюз.
func (m PaymentMethod) GatewaySettled() bool {
	return m == PaymentCreditCard || m == PaymentEWallet
}

// OrderItem описывает позицию заказа со снимком данных товара на момент оформления.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Image     string `json:"image,omitempty"`
}

// LineTotal возвращает стоимость позиции.
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// ShippingAddress содержит снимок адреса доставки.
type ShippingAddress struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city,omitempty"`
	District string `json:"district,omitempty"`
	Ward     string `json:"ward,omitempty"`
}

// PaymentDetails содержит сведения об оплате заказа.
type PaymentDetails struct {
	TransferCode        string     `json:"transfer_code,omitempty"`
	CardLast4           string     `json:"card_last4,omitempty"`
	WalletTransactionID string     `json:"wallet_transaction_id,omitempty"`
	TransferClaimedAt   *time.Time `json:"transfer_claimed_at,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
	VerifiedBy          string     `json:"verified_by,omitempty"`
	FailedAt            *time.Time `json:"failed_at,omitempty"`
	FailureReason       string     `json:"failure_reason,omitempty"`
	RefundedAt          *time.Time `json:"refunded_at,omitempty"`
}

// Order описывает заказ покупателя.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Status          OrderStatus
	Subtotal        int64
	ShippingFee     int64
	Discount        int64
	Total           int64
	CancelReason    string
	CancelledAt     *time.Time
	DeliveredAt     *time.Time
	Payment         PaymentDetails
	PaymentProof    string
	History         []HistoryEntry
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrder создаёт заказ в начальном статусе и пересчитывает суммы.
func NewOrder(o Order, at time.Time, actor Actor) (*Order, error) {
	o.Status = ""
	o.History = nil
	o.Version = 1
	o.CreatedAt = at
	o.UpdatedAt = at
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	if err := o.RecalculateTotals(); err != nil {
		return nil, err
	}
	o.appendHistory(newHistoryEntry(string(OrderPending), at, "order placed", actor))
	return &o, nil
}

// RecalculateTotals пересчитывает промежуточный итог и итог заказа.
func (o *Order) RecalculateTotals() error {
	var subtotal int64
	for _, it := range o.Items {
		if it.Quantity < 1 || it.UnitPrice < 0 {
			return fmt.Errorf("%w: invalid item %s", ErrValidation, it.ProductID)
		}
		subtotal += it.LineTotal()
	}
	if o.ShippingFee < 0 || o.Discount < 0 {
		return fmt.Errorf("%w: negative shipping fee or discount", ErrValidation)
	}
	if o.Discount > subtotal+o.ShippingFee {
		return fmt.Errorf("%w: discount exceeds order amount", ErrValidation)
	}
	o.Subtotal = subtotal
	o.Total = subtotal + o.ShippingFee - o.Discount
	return nil
}

// TotalsConsistent проверяет инвариант total = subtotal + shippingFee - discount.
func (o *Order) TotalsConsistent() bool {
	return o.Total == o.Subtotal+o.ShippingFee-o.Discount && o.Total >= 0
}

// CanConfirm проверяет связь статуса оплаты с подтверждением заказа.
// Наложенный платёж подтверждается до оплаты, неуспешная оплата подтверждение блокирует.
func (o *Order) CanConfirm() bool {
	if o.PaymentStatus == PaymentPaid {
		return true
	}
	return o.PaymentMethod == PaymentCOD && o.PaymentStatus == PaymentPending
}

// Transition переводит заказ в новый статус и дописывает журнал.
func (o *Order) Transition(next OrderStatus, at time.Time, note string, actor Actor) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	if next == OrderConfirmed && !o.CanConfirm() {
		return fmt.Errorf("%w: order cannot be confirmed with payment %s via %s", ErrInvalidTransition, o.PaymentStatus, o.PaymentMethod)
	}

	ts := at
	switch next {
	case OrderCancelled:
		o.CancelledAt = &ts
		o.CancelReason = note
	case OrderDelivered:
		o.DeliveredAt = &ts
	}

	o.appendHistory(newHistoryEntry(string(next), at, note, actor))
	return nil
}

// SetPaymentStatus переводит оплату по графу статусов оплаты.
func (o *Order) SetPaymentStatus(next PaymentStatus, at time.Time) error {
	if o.PaymentStatus == PaymentPaid && next == PaymentPaid {
		return ErrAlreadyPaid
	}
	if !o.PaymentStatus.CanTransitionTo(next) {
		return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, next)
	}
	o.PaymentStatus = next
	o.UpdatedAt = at
	return nil
}

func (o *Order) appendHistory(e HistoryEntry) {
	o.History = append(o.History, e)
	o.Status = OrderStatus(e.Status)
	o.UpdatedAt = e.At
}

// Clone возвращает глубокую копию заказа.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.History = append([]HistoryEntry(nil), o.History...)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.Payment.TransferClaimedAt = cloneTime(o.Payment.TransferClaimedAt)
	c.Payment.PaidAt = cloneTime(o.Payment.PaidAt)
	c.Payment.VerifiedAt = cloneTime(o.Payment.VerifiedAt)
	c.Payment.FailedAt = cloneTime(o.Payment.FailedAt)
	c.Payment.RefundedAt = cloneTime(o.Payment.RefundedAt)
	return &c
}

// OrderNumberPrefix открывает каждый номер заказа.
const OrderNumberPrefix = "PC"
