// Package repository содержит хранилища записей, заказов и каталога: PostgreSQL и in-memory.
package repository

import (
	"errors"
	"time"

	"github.com/mmeshcher/petcare-system/internal/model"
)

// ErrDuplicateOrderNumber возвращается, если сгенерированный номер заказа уже занят.
var ErrDuplicateOrderNumber = errors.New("order number already exists")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AppointmentFilter задаёт условия выборки записей. Пустые поля не ограничивают выборку.
type AppointmentFilter struct {
	CustomerID  string
	Status      model.AppointmentStatus
	ServiceType model.ServiceType
	Date        *time.Time
	Limit       int
}

// OrderFilter задаёт условия выборки заказов. Пустые поля не ограничивают выборку.
type OrderFilter struct {
	UserID        string
	Status        model.OrderStatus
	PaymentStatus model.PaymentStatus
	Limit         int
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
