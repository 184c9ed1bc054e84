package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/repository"
	"github.com/mmeshcher/petcare-system/internal/slots"
	"github.com/mmeshcher/petcare-system/internal/validation"
)

// BookRequest описывает запрос на запись питомца.
type BookRequest struct {
	CustomerID    string
	CustomerName  string
	CustomerPhone string
	PetID         string
	ServiceType   model.ServiceType
	Date          string
	TimeSlot      model.TimeSlot
	Price         int64
	Notes         string
}

// Book создаёт запись в статусе pending, если слот свободен.
// При занятом слоте возвращает model.ErrSlotUnavailable и ничего не создаёт.
func (s *Service) Book(ctx context.Context, actor model.Actor, req BookRequest) (*model.Appointment, error) {
	if actor.Role == model.RoleCustomer {
		if req.CustomerID != "" && req.CustomerID != actor.ID {
			return nil, fmt.Errorf("%w: cannot book for another customer", model.ErrForbidden)
		}
		req.CustomerID = actor.ID
	}

	date, err := s.validateBooking(req)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	a := model.NewAppointment(model.Appointment{
		ID:            s.newID(),
		CustomerID:    req.CustomerID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		PetID:         req.PetID,
		ServiceType:   req.ServiceType,
		Date:          date,
		TimeSlot:      req.TimeSlot,
		Price:         req.Price,
		Notes:         strings.TrimSpace(req.Notes),
	}, now, actor)

	ev := statusEvent(events.AppointmentBooked, events.AggregateAppointment, a.ID, "", "", string(a.Status), a.Notes, actor, now)
	if err := s.repo.InsertAppointment(ctx, a, ev); err != nil {
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", a.ID),
		zap.String("slot", a.SlotKey().String()),
		zap.String("actor", actor.ID),
	)
	return a, nil
}

func (s *Service) validateBooking(req BookRequest) (time.Time, error) {
	if validation.IsBlank(req.CustomerID) || validation.IsBlank(req.PetID) {
		return time.Time{}, fmt.Errorf("%w: customer and pet are required", model.ErrValidation)
	}
	if validation.IsBlank(req.CustomerName) {
		return time.Time{}, fmt.Errorf("%w: customer name is required", model.ErrValidation)
	}
	if !req.ServiceType.Valid() {
		return time.Time{}, fmt.Errorf("%w: unknown service type %q", model.ErrValidation, req.ServiceType)
	}
	if req.Price < 0 {
		return time.Time{}, fmt.Errorf("%w: negative price", model.ErrValidation)
	}

	date, ok := validation.ParseDate(req.Date)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", model.ErrValidation, req.Date)
	}
	start, ok := slots.StartsAt(s.localDate(date), req.TimeSlot)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: invalid time slot %q", model.ErrValidation, req.TimeSlot)
	}
	if !start.After(s.clock()) {
		return time.Time{}, fmt.Errorf("%w: time slot already started", model.ErrValidation)
	}
	return date, nil
}

// localDate переносит календарную дату в часовой пояс магазина.
func (s *Service) localDate(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.cfg.Location)
}

// Confirm переводит запись pending -> confirmed.
func (s *Service) Confirm(ctx context.Context, actor model.Actor, id, note string) (*model.Appointment, error) {
	return s.transitionAppointment(ctx, actor, id, model.AppointmentConfirmed, note, events.AppointmentConfirmed, nil)
}

// Start переводит запись confirmed -> in_progress.
func (s *Service) Start(ctx context.Context, actor model.Actor, id, note string) (*model.Appointment, error) {
	return s.transitionAppointment(ctx, actor, id, model.AppointmentInProgress, note, events.AppointmentStarted, nil)
}

// Complete переводит запись in_progress -> completed и освобождает слот.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id, note, staffNote string) (*model.Appointment, error) {
	return s.transitionAppointment(ctx, actor, id, model.AppointmentCompleted, note, events.AppointmentCompleted, func(a *model.Appointment) {
		if staffNote = strings.TrimSpace(staffNote); staffNote != "" {
			a.StaffNotes = staffNote
		}
	})
}

// Cancel отменяет активную запись. Причина обязательна; покупатель может отменить только свою запись.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Appointment, error) {
	if validation.IsBlank(reason) {
		return nil, fmt.Errorf("%w: cancellation reason is required", model.ErrValidation)
	}
	return s.transitionAppointment(ctx, actor, id, model.AppointmentCancelled, strings.TrimSpace(reason), events.AppointmentCancelled, nil)
}

func (s *Service) transitionAppointment(
	ctx context.Context,
	actor model.Actor,
	id string,
	next model.AppointmentStatus,
	note string,
	evType events.Type,
	mutate func(a *model.Appointment),
) (*model.Appointment, error) {
	if actor.Role == model.RoleCustomer && next != model.AppointmentCancelled {
		return nil, fmt.Errorf("%w: only staff can move appointment to %s", model.ErrForbidden, next)
	}

	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleCustomer && a.CustomerID != actor.ID {
		return nil, fmt.Errorf("%w: appointment %s", model.ErrForbidden, id)
	}

	expected := a.Version
	from := a.Status
	now := s.clock()

	if err := a.Transition(next, now, note, actor); err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(a)
	}

	ev := statusEvent(evType, events.AggregateAppointment, a.ID, "", string(from), string(next), note, actor, now)
	if err := s.repo.UpdateAppointment(ctx, a, expected, ev); err != nil {
		return nil, err
	}

	s.logger.Info("appointment status changed",
		zap.String("appointment_id", a.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("actor", actor.ID),
	)
	return a, nil
}

// MarkAppointmentPaid отмечает запись оплаченной. Повторная отметка возвращает model.ErrAlreadyPaid.
func (s *Service) MarkAppointmentPaid(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: only staff can mark appointment paid", model.ErrForbidden)
	}

	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsPaid {
		return nil, fmt.Errorf("%w: appointment %s", model.ErrAlreadyPaid, id)
	}
	if a.Status == model.AppointmentCancelled {
		return nil, fmt.Errorf("%w: appointment %s is cancelled", model.ErrInvalidTransition, id)
	}

	expected := a.Version
	now := s.clock()
	a.IsPaid = true
	a.UpdatedAt = now

	ev := statusEvent(events.AppointmentPaid, events.AggregateAppointment, a.ID, "", "", string(a.Status), "paid", actor, now)
	if err := s.repo.UpdateAppointment(ctx, a, expected, ev); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAppointment возвращает запись. Покупатель видит только свои записи.
func (s *Service) GetAppointment(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleCustomer && a.CustomerID != actor.ID {
		return nil, fmt.Errorf("%w: appointment %s", model.ErrForbidden, id)
	}
	return a, nil
}

// AppointmentQuery задаёт фильтр списка записей в терминах API.
type AppointmentQuery struct {
	CustomerID  string
	Status      model.AppointmentStatus
	ServiceType model.ServiceType
	Date        string
	Limit       int
}

// ListAppointments возвращает записи по фильтру. Для покупателя фильтр всегда ограничен его записями.
func (s *Service) ListAppointments(ctx context.Context, actor model.Actor, q AppointmentQuery) ([]model.Appointment, error) {
	f := repository.AppointmentFilter{
		CustomerID:  q.CustomerID,
		Status:      q.Status,
		ServiceType: q.ServiceType,
		Limit:       q.Limit,
	}
	if actor.Role == model.RoleCustomer {
		f.CustomerID = actor.ID
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, f.Status)
	}
	if f.ServiceType != "" && !f.ServiceType.Valid() {
		return nil, fmt.Errorf("%w: unknown service type %q", model.ErrValidation, f.ServiceType)
	}
	if q.Date != "" {
		d, ok := validation.ParseDate(q.Date)
		if !ok {
			return nil, fmt.Errorf("%w: invalid date %q", model.ErrValidation, q.Date)
		}
		f.Date = &d
	}
	return s.repo.ListAppointments(ctx, f)
}

// AvailableSlots возвращает свободные слоты даты для вида услуги.
func (s *Service) AvailableSlots(ctx context.Context, date string, serviceType model.ServiceType) ([]model.TimeSlot, error) {
	d, ok := validation.ParseDate(date)
	if !ok {
		return nil, fmt.Errorf("%w: invalid date %q", model.ErrValidation, date)
	}
	if !serviceType.Valid() {
		return nil, fmt.Errorf("%w: unknown service type %q", model.ErrValidation, serviceType)
	}

	taken, err := s.repo.TakenSlots(ctx, d, serviceType)
	if err != nil {
		return nil, err
	}
	return slots.Available(s.localDate(d), taken, s.clock()), nil
}
