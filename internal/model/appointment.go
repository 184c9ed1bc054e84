package model

import (
	"fmt"
	"slices"
	"time"
)

// ServiceType описывает вид услуги, на которую можно записаться.
type ServiceType string

const (
	ServiceGrooming   ServiceType = "grooming"
	ServiceVeterinary ServiceType = "veterinary"
	ServiceSpa        ServiceType = "spa"
	ServiceTraining   ServiceType = "training"
	ServiceHotel      ServiceType = "hotel"
)

// ServiceTypes перечисляет все виды услуг.
var ServiceTypes = []ServiceType{ServiceGrooming, ServiceVeterinary, ServiceSpa, ServiceTraining, ServiceHotel}

// Valid сообщает, известен ли вид услуги.
func (s ServiceType) Valid() bool {
	for _, v := range ServiceTypes {
		if v == s {
			return true
		}
	}
	return false
}

// TimeSlot задаёт часовой интервал записи в формате "HH:MM-HH:MM".
type TimeSlot string

// AppointmentStatus описывает статус записи.
type AppointmentStatus string

const (
	AppointmentPending    AppointmentStatus = "pending"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPending:    {AppointmentConfirmed, AppointmentCancelled},
	AppointmentConfirmed:  {AppointmentInProgress, AppointmentCancelled},
	AppointmentInProgress: {AppointmentCompleted, AppointmentCancelled},
}

// Valid сообщает, известен ли статус.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentInProgress, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// Active сообщает, занимает ли запись в этом статусе слот.
func (s AppointmentStatus) Active() bool {
	return slices.Contains(ActiveAppointmentStatuses, s)
}

// Terminal сообщает, что из статуса нет переходов.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled
}

// CanTransitionTo проверяет наличие ребра в графе статусов записи.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, v := range appointmentTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// ActiveAppointmentStatuses перечисляет статусы, занимающие слот.
var ActiveAppointmentStatuses = []AppointmentStatus{AppointmentPending, AppointmentConfirmed, AppointmentInProgress}

// SlotKey идентифицирует эксклюзивный слот: дата, интервал и вид услуги.
type SlotKey struct {
	Date        string
	TimeSlot    TimeSlot
	ServiceType ServiceType
}

func (k SlotKey) String() string {
	return k.Date + "/" + string(k.TimeSlot) + "/" + string(k.ServiceType)
}

// Appointment описывает запись питомца на услугу.
type Appointment struct {
	ID            string
	CustomerID    string
	CustomerName  string
	CustomerPhone string
	PetID         string
	ServiceType   ServiceType
	Date          time.Time
	TimeSlot      TimeSlot
	Price         int64
	Status        AppointmentStatus
	Notes         string
	StaffNotes    string
	CancelReason  string
	IsPaid        bool
	History       []HistoryEntry
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ConfirmedAt   *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
}

// NewAppointment создаёт запись в начальном статусе с единственной записью журнала.
func NewAppointment(a Appointment, at time.Time, actor Actor) *Appointment {
	a.Status = ""
	a.History = nil
	a.Version = 1
	a.CreatedAt = at
	a.UpdatedAt = at
	a.appendHistory(newHistoryEntry(string(AppointmentPending), at, a.Notes, actor))
	return &a
}

// SlotKey возвращает ключ слота записи.
func (a *Appointment) SlotKey() SlotKey {
	return SlotKey{
		Date:        a.Date.Format(DateLayout),
		TimeSlot:    a.TimeSlot,
		ServiceType: a.ServiceType,
	}
}

// Transition переводит запись в новый статус и дописывает журнал.
// Метки времени этапов проставляются здесь же.
func (a *Appointment) Transition(next AppointmentStatus, at time.Time, note string, actor Actor) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: appointment %s -> %s", ErrInvalidTransition, a.Status, next)
	}

	ts := at
	switch next {
	case AppointmentConfirmed:
		a.ConfirmedAt = &ts
	case AppointmentInProgress:
		a.StartedAt = &ts
	case AppointmentCompleted:
		a.CompletedAt = &ts
	case AppointmentCancelled:
		a.CancelledAt = &ts
		a.CancelReason = note
	}

	a.appendHistory(newHistoryEntry(string(next), at, note, actor))
	return nil
}

// appendHistory единственная меняет статус: он всегда равен последней записи журнала.
func (a *Appointment) appendHistory(e HistoryEntry) {
	a.History = append(a.History, e)
	a.Status = AppointmentStatus(e.Status)
	a.UpdatedAt = e.At
}

// Clone возвращает глубокую копию записи.
func (a *Appointment) Clone() *Appointment {
	c := *a
	c.History = append([]HistoryEntry(nil), a.History...)
	c.ConfirmedAt = cloneTime(a.ConfirmedAt)
	c.StartedAt = cloneTime(a.StartedAt)
	c.CompletedAt = cloneTime(a.CompletedAt)
	c.CancelledAt = cloneTime(a.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
