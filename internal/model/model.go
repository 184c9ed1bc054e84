// Package model содержит доменные сущности сервиса записи и заказов зоомагазина.
package model

import "time"

// DateLayout задаёт формат календарной даты записи.
const DateLayout = "2006-01-02"

// Role описывает роль участника, уже проверенную слоем авторизации.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Valid сообщает, известна ли роль.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor описывает инициатора изменения.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor используется фоновыми процессами сервиса.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// IsStaff сообщает, действует ли участник от имени магазина.
func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin || a.Role == RoleSystem
}

// HistoryEntry описывает неизменяемую запись журнала переходов статуса.
type HistoryEntry struct {
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
	Note      string    `json:"note,omitempty"`
	ActorID   string    `json:"actor_id"`
	ActorRole Role      `json:"actor_role"`
}

func newHistoryEntry(status string, at time.Time, note string, actor Actor) HistoryEntry {
	return HistoryEntry{
		Status:    status,
		At:        at,
		Note:      note,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
	}
}

// User содержит данные пользователя, нужные для отчётов и дашборда.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// Category описывает категорию товаров каталога.
type Category struct {
	ID   string
	Name string
}

// Product описывает товар каталога.
type Product struct {
	ID         string
	Name       string
	CategoryID string
	Price      int64
	Image      string
	Stock      int
	CreatedAt  time.Time
}
