package report

import (
	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/stats"
)

// Entity задаёт вид выгружаемых данных.
type Entity string

const (
	Users      Entity = "users"
	Orders     Entity = "orders"
	Products   Entity = "products"
	Revenue    Entity = "revenue"
	Activities Entity = "activities"
)

// Valid сообщает, поддерживается ли выгрузка.
func (e Entity) Valid() bool {
	switch e {
	case Users, Orders, Products, Revenue, Activities:
		return true
	}
	return false
}

var (
	UserColumns     = []string{"id", "name", "email", "role", "created_at"}
	OrderColumns    = []string{"id", "number", "user_id", "status", "payment_method", "payment_status", "items", "subtotal", "shipping_fee", "discount", "total", "created_at"}
	ProductColumns  = []string{"id", "name", "category_id", "price", "stock", "created_at"}
	RevenueColumns  = []string{"bucket", "orders", "revenue", "appointments"}
	ActivityColumns = []string{"at", "kind", "entity_id", "reference", "status", "note", "actor_id", "actor_role"}
)

// UserRow возвращает значения строки пользователя в порядке UserColumns.
func UserRow(u model.User) []any {
	return []any{u.ID, u.Name, u.Email, string(u.Role), u.CreatedAt}
}

// OrderRow возвращает значения строки заказа в порядке OrderColumns; items содержит суммарное количество единиц.
func OrderRow(o model.Order) []any {
	units := 0
	for _, it := range o.Items {
		units += it.Quantity
	}
	return []any{
		o.ID, o.Number, o.UserID, string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus),
		units, o.Subtotal, o.ShippingFee, o.Discount, o.Total, o.CreatedAt,
	}
}

// ProductRow возвращает значения строки товара в порядке ProductColumns.
func ProductRow(p model.Product) []any {
	return []any{p.ID, p.Name, p.CategoryID, p.Price, p.Stock, p.CreatedAt}
}

// RevenueRow возвращает значения строки ряда продаж в порядке RevenueColumns.
func RevenueRow(p stats.SeriesPoint) []any {
	return []any{p.Bucket, p.Orders, p.Revenue, p.Appointments}
}

// ActivityRow возвращает значения строки ленты в порядке ActivityColumns.
func ActivityRow(a stats.Activity) []any {
	return []any{a.At, a.Kind, a.EntityID, a.Reference, a.Status, a.Note, a.ActorID, string(a.ActorRole)}
}
