package model

import "errors"

var (
	// ErrNotFound возвращается, если сущность с указанным идентификатором не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition возвращается при нарушении графа статусов.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSlotUnavailable возвращается, если слот уже занят активной записью.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrAlreadyPaid возвращается при повторном подтверждении оплаты.
	ErrAlreadyPaid = errors.New("already paid")
	// ErrConflict возвращается, если запись изменилась после чтения.
	ErrConflict = errors.New("version conflict")
	// ErrForbidden возвращается, если участник не владеет сущностью.
	ErrForbidden = errors.New("forbidden")
)
