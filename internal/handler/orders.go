package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/repository"
	"github.com/mmeshcher/petcare-system/internal/service"
)

type checkoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	UserID          string                `json:"user_id"`
	Items           []checkoutItem        `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   model.PaymentMethod   `json:"payment_method"`
	Discount        int64                 `json:"discount"`
}

type orderActionRequest struct {
	Status model.OrderStatus `json:"status"`
	Note   string            `json:"note"`
	Reason string            `json:"reason"`
	Proof  string            `json:"proof"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	Number          string                `json:"order_number"`
	UserID          string                `json:"user_id"`
	Items           []model.OrderItem     `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   model.PaymentMethod   `json:"payment_method"`
	PaymentStatus   model.PaymentStatus   `json:"payment_status"`
	Status          model.OrderStatus     `json:"status"`
	Subtotal        int64                 `json:"subtotal"`
	ShippingFee     int64                 `json:"shipping_fee"`
	Discount        int64                 `json:"discount"`
	Total           int64                 `json:"total"`
	CancelReason    string                `json:"cancel_reason,omitempty"`
	Payment         model.PaymentDetails  `json:"payment_details"`
	PaymentProof    string                `json:"payment_proof,omitempty"`
	History         []model.HistoryEntry  `json:"status_history"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at"`
}

func newOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		UserID:          o.UserID,
		Items:           o.Items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		Status:          o.Status,
		Subtotal:        o.Subtotal,
		ShippingFee:     o.ShippingFee,
		Discount:        o.Discount,
		Total:           o.Total,
		CancelReason:    o.CancelReason,
		Payment:         o.Payment,
		PaymentProof:    o.PaymentProof,
		History:         o.History,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339),
	}
}

// Checkout оформляет заказ из позиций корзины.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]service.CheckoutItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.CheckoutItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.service.Checkout(r.Context(), actor, service.CheckoutRequest{
		UserID:          req.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Discount:        req.Discount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// GetOrderByNumber возвращает заказ по номеру.
func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrderByNumber(r.Context(), actor, chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// ListOrders возвращает заказы по фильтрам из строки запроса.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	q := r.URL.Query()
	orders, err := h.service.ListOrders(r.Context(), actor, repository.OrderFilter{
		UserID:        q.Get("user_id"),
		Status:        model.OrderStatus(q.Get("status")),
		PaymentStatus: model.PaymentStatus(q.Get("payment_status")),
		Limit:         limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type orderAction func(h *Handler, r *http.Request, actor model.Actor, id string, req orderActionRequest) (*model.Order, error)

func (h *Handler) orderTransition(action orderAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req orderActionRequest
		if !h.decode(w, r, &req) {
			return
		}

		o, err := action(h, r, actor, chi.URLParam(r, "id"), req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, newOrderResponse(o))
	}
}

func updateOrderStatus(h *Handler, r *http.Request, actor model.Actor, id string, req orderActionRequest) (*model.Order, error) {
	return h.service.UpdateStatus(r.Context(), actor, id, req.Status, req.Note)
}

func cancelOrder(h *Handler, r *http.Request, actor model.Actor, id string, req orderActionRequest) (*model.Order, error) {
	return h.service.CancelOrder(r.Context(), actor, id, req.Reason)
}

func confirmOrderPayment(h *Handler, r *http.Request, actor model.Actor, id string, req orderActionRequest) (*model.Order, error) {
	return h.service.ConfirmPayment(r.Context(), actor, id, req.Note)
}

func failOrderPayment(h *Handler, r *http.Request, actor model.Actor, id string, req orderActionRequest) (*model.Order, error) {
	return h.service.FailPayment(r.Context(), actor, id, req.Reason)
}

func retryOrderPayment(h *Handler, r *http.Request, actor model.Actor, id string, _ orderActionRequest) (*model.Order, error) {
	return h.service.RetryPayment(r.Context(), actor, id)
}

func confirmOrderTransfer(h *Handler, r *http.Request, actor model.Actor, id string, req orderActionRequest) (*model.Order, error) {
	return h.service.ConfirmTransfer(r.Context(), actor, id, req.Proof)
}

// PaymentQR возвращает данные для оплаты заказа переводом по QR-коду.
func (h *Handler) PaymentQR(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	qr, err := h.service.GenerateQRPayment(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, qr)
}
