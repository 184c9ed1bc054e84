// Package handler содержит HTTP-обработчики API записи на услуги, заказов и дашборда зоомагазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/petcare-system/internal/middleware"
	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/repository"
	"github.com/mmeshcher/petcare-system/internal/service"
	"github.com/mmeshcher/petcare-system/internal/stats"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	Book(ctx context.Context, actor model.Actor, req service.BookRequest) (*model.Appointment, error)
	Confirm(ctx context.Context, actor model.Actor, id, note string) (*model.Appointment, error)
	Start(ctx context.Context, actor model.Actor, id, note string) (*model.Appointment, error)
	Complete(ctx context.Context, actor model.Actor, id, note, staffNote string) (*model.Appointment, error)
	Cancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Appointment, error)
	MarkAppointmentPaid(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error)
	GetAppointment(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error)
	ListAppointments(ctx context.Context, actor model.Actor, q service.AppointmentQuery) ([]model.Appointment, error)
	AvailableSlots(ctx context.Context, date string, serviceType model.ServiceType) ([]model.TimeSlot, error)

	Checkout(ctx context.Context, actor model.Actor, req service.CheckoutRequest) (*model.Order, error)
	UpdateStatus(ctx context.Context, actor model.Actor, id string, next model.OrderStatus, note string) (*model.Order, error)
	CancelOrder(ctx context.Context, actor model.Actor, id, reason string) (*model.Order, error)
	ConfirmPayment(ctx context.Context, actor model.Actor, id, note string) (*model.Order, error)
	FailPayment(ctx context.Context, actor model.Actor, id, reason string) (*model.Order, error)
	RetryPayment(ctx context.Context, actor model.Actor, id string) (*model.Order, error)
	GenerateQRPayment(ctx context.Context, actor model.Actor, id string) (*service.QRPayment, error)
	ConfirmTransfer(ctx context.Context, actor model.Actor, id, proofRef string) (*model.Order, error)
	GetOrder(ctx context.Context, actor model.Actor, id string) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, actor model.Actor, number string) (*model.Order, error)
	ListOrders(ctx context.Context, actor model.Actor, f repository.OrderFilter) ([]model.Order, error)

	Overview(ctx context.Context, p string) (stats.Overview, error)
	SalesSeries(ctx context.Context, p, groupBy string) ([]stats.SeriesPoint, error)
	CategoryDistribution(ctx context.Context, p string) ([]stats.CategoryShare, error)
	TopProducts(ctx context.Context, p string, limit int) ([]stats.TopProduct, error)
	Activities(ctx context.Context, p string, limit int) ([]stats.Activity, error)
	Export(ctx context.Context, w io.Writer, req service.ExportRequest) error
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// rateLimiter может быть nil, тогда ограничение частоты не применяется.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		rateLimiter:    rateLimiter,
	}
}

// Ping проверяет доступность хранилища.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("ping error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type tokenRequest struct {
	ID        string     `json:"id"`
	Role      model.Role `json:"role"`
	SetCookie bool       `json:"set_cookie"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// IssueToken выпускает подписанный токен участника. Доступно только администратору.
// С set_cookie токен дополнительно кладётся в cookie ответа, так можно авторизовать
// браузер стойки администратора под сотрудником.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" || !req.Role.Valid() || req.Role == model.RoleSystem {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	actor := model.Actor{ID: req.ID, Role: req.Role}
	if req.SetCookie {
		h.authMiddleware.SetAuthCookie(w, actor)
	}
	h.writeJSON(w, http.StatusOK, tokenResponse{
		Token: h.authMiddleware.IssueToken(actor),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError переводит доменную ошибку в код ответа. Неожиданные ошибки логируются.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrSlotUnavailable),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrAlreadyPaid):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func actorFrom(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return actor, ok
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
