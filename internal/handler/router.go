package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/petcare-system/internal/middleware"
	"github.com/mmeshcher/petcare-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/ping", h.Ping)

	staff := custommiddleware.RequireRole(model.RoleStaff, model.RoleAdmin)
	admin := custommiddleware.RequireRole(model.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/appointments", func(r chi.Router) {
			r.With(h.limited).Post("/", h.BookAppointment)
			r.Get("/", h.ListAppointments)
			r.Get("/slots", h.AvailableSlots)
			r.Get("/{id}", h.GetAppointment)
			r.Post("/{id}/cancel", h.appointmentTransition(cancelAppointment))

			r.Group(func(r chi.Router) {
				r.Use(staff)

				r.Post("/{id}/confirm", h.appointmentTransition(confirmAppointment))
				r.Post("/{id}/start", h.appointmentTransition(startAppointment))
				r.Post("/{id}/complete", h.appointmentTransition(completeAppointment))
				r.Post("/{id}/paid", h.appointmentTransition(markAppointmentPaid))
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(h.limited).Post("/", h.Checkout)
			r.Get("/", h.ListOrders)
			r.Get("/number/{number}", h.GetOrderByNumber)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/cancel", h.orderTransition(cancelOrder))
			r.Post("/{id}/payment/retry", h.orderTransition(retryOrderPayment))
			r.Get("/{id}/payment/qr", h.PaymentQR)
			r.With(h.limited).Post("/{id}/payment/transfer", h.orderTransition(confirmOrderTransfer))

			r.Group(func(r chi.Router) {
				r.Use(staff)

				r.Post("/{id}/status", h.orderTransition(updateOrderStatus))
				r.Post("/{id}/payment/confirm", h.orderTransition(confirmOrderPayment))
				r.Post("/{id}/payment/fail", h.orderTransition(failOrderPayment))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(admin)

			r.Get("/dashboard/overview", h.Overview)
			r.Get("/dashboard/sales", h.SalesSeries)
			r.Get("/dashboard/categories", h.CategoryDistribution)
			r.Get("/dashboard/top-products", h.TopProducts)
			r.Get("/dashboard/activities", h.Activities)
			r.Get("/export/{entity}", h.Export)
			r.Post("/tokens", h.IssueToken)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func (h *Handler) limited(next http.Handler) http.Handler {
	if h.rateLimiter == nil {
		return next
	}
	return h.rateLimiter.Middleware(next)
}
