package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/service"
)

type bookRequest struct {
	CustomerID    string            `json:"customer_id"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	PetID         string            `json:"pet_id"`
	ServiceType   model.ServiceType `json:"service_type"`
	Date          string            `json:"date"`
	TimeSlot      model.TimeSlot    `json:"time_slot"`
	Price         int64             `json:"price"`
	Notes         string            `json:"notes"`
}

type transitionRequest struct {
	Note       string `json:"note"`
	StaffNotes string `json:"staff_notes"`
	Reason     string `json:"reason"`
}

type appointmentResponse struct {
	ID            string               `json:"id"`
	CustomerID    string               `json:"customer_id"`
	CustomerName  string               `json:"customer_name"`
	CustomerPhone string               `json:"customer_phone,omitempty"`
	PetID         string               `json:"pet_id"`
	ServiceType   model.ServiceType    `json:"service_type"`
	Date          string               `json:"date"`
	TimeSlot      model.TimeSlot       `json:"time_slot"`
	Price         int64                `json:"price"`
	Status        string               `json:"status"`
	Notes         string               `json:"notes,omitempty"`
	StaffNotes    string               `json:"staff_notes,omitempty"`
	CancelReason  string               `json:"cancel_reason,omitempty"`
	IsPaid        bool                 `json:"is_paid"`
	History       []model.HistoryEntry `json:"status_history"`
	CreatedAt     string               `json:"created_at"`
	UpdatedAt     string               `json:"updated_at"`
}

func newAppointmentResponse(a *model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:            a.ID,
		CustomerID:    a.CustomerID,
		CustomerName:  a.CustomerName,
		CustomerPhone: a.CustomerPhone,
		PetID:         a.PetID,
		ServiceType:   a.ServiceType,
		Date:          a.Date.Format(model.DateLayout),
		TimeSlot:      a.TimeSlot,
		Price:         a.Price,
		Status:        string(a.Status),
		Notes:         a.Notes,
		StaffNotes:    a.StaffNotes,
		CancelReason:  a.CancelReason,
		IsPaid:        a.IsPaid,
		History:       a.History,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.Format(time.RFC3339),
	}
}

// BookAppointment создаёт запись питомца на услугу.
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.service.Book(r.Context(), actor, service.BookRequest{
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		PetID:         req.PetID,
		ServiceType:   req.ServiceType,
		Date:          req.Date,
		TimeSlot:      req.TimeSlot,
		Price:         req.Price,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newAppointmentResponse(a))
}

// GetAppointment возвращает запись по идентификатору.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	a, err := h.service.GetAppointment(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newAppointmentResponse(a))
}

// ListAppointments возвращает записи по фильтрам из строки запроса.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	q := r.URL.Query()
	list, err := h.service.ListAppointments(r.Context(), actor, service.AppointmentQuery{
		CustomerID:  q.Get("customer_id"),
		Status:      model.AppointmentStatus(q.Get("status")),
		ServiceType: model.ServiceType(q.Get("service_type")),
		Date:        q.Get("date"),
		Limit:       limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]appointmentResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newAppointmentResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type slotsResponse struct {
	Date        string            `json:"date"`
	ServiceType model.ServiceType `json:"service_type"`
	Slots       []model.TimeSlot  `json:"slots"`
}

// AvailableSlots возвращает свободные слоты даты для вида услуги.
func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	st := model.ServiceType(q.Get("service_type"))

	free, err := h.service.AvailableSlots(r.Context(), date, st)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if free == nil {
		free = []model.TimeSlot{}
	}
	h.writeJSON(w, http.StatusOK, slotsResponse{Date: date, ServiceType: st, Slots: free})
}

type appointmentAction func(h *Handler, r *http.Request, actor model.Actor, id string, req transitionRequest) (*model.Appointment, error)

func (h *Handler) appointmentTransition(action appointmentAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req transitionRequest
		if !h.decode(w, r, &req) {
			return
		}

		a, err := action(h, r, actor, chi.URLParam(r, "id"), req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, newAppointmentResponse(a))
	}
}

func confirmAppointment(h *Handler, r *http.Request, actor model.Actor, id string, req transitionRequest) (*model.Appointment, error) {
	return h.service.Confirm(r.Context(), actor, id, req.Note)
}

func startAppointment(h *Handler, r *http.Request, actor model.Actor, id string, req transitionRequest) (*model.Appointment, error) {
	return h.service.Start(r.Context(), actor, id, req.Note)
}

func completeAppointment(h *Handler, r *http.Request, actor model.Actor, id string, req transitionRequest) (*model.Appointment, error) {
	return h.service.Complete(r.Context(), actor, id, req.Note, req.StaffNotes)
}

func cancelAppointment(h *Handler, r *http.Request, actor model.Actor, id string, req transitionRequest) (*model.Appointment, error) {
	return h.service.Cancel(r.Context(), actor, id, req.Reason)
}

func markAppointmentPaid(h *Handler, r *http.Request, actor model.Actor, id string, _ transitionRequest) (*model.Appointment, error) {
	return h.service.MarkAppointmentPaid(r.Context(), actor, id)
}
