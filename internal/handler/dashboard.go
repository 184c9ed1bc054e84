package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/petcare-system/internal/report"
	"github.com/mmeshcher/petcare-system/internal/service"
)

// Overview возвращает сводку дашборда за период.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.service.Overview(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ov)
}

// SalesSeries возвращает ряд продаж за период с группировкой group_by.
func (h *Handler) SalesSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	series, err := h.service.SalesSeries(r.Context(), q.Get("period"), q.Get("group_by"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, series)
}

// CategoryDistribution возвращает распределение продаж по категориям.
func (h *Handler) CategoryDistribution(w http.ResponseWriter, r *http.Request) {
	shares, err := h.service.CategoryDistribution(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, shares)
}

// TopProducts возвращает самые продаваемые товары.
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	top, err := h.service.TopProducts(r.Context(), r.URL.Query().Get("period"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, top)
}

// Activities возвращает ленту последних действий.
func (h *Handler) Activities(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	feed, err := h.service.Activities(r.Context(), r.URL.Query().Get("period"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, feed)
}

// trackingWriter запоминает, начат ли уже ответ.
type trackingWriter struct {
	http.ResponseWriter
	header  func()
	started bool
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	if !w.started {
		w.started = true
		w.header()
		w.ResponseWriter.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Export выгружает отчёт потоково. Ошибка до первой строки превращается в код ответа,
// после начала выгрузки только логируется.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.ExportRequest{
		Entity: report.Entity(chi.URLParam(r, "entity")),
		Format: report.ParseFormat(q.Get("format")),
		Period: q.Get("period"),
	}

	tw := &trackingWriter{ResponseWriter: w}
	tw.header = func() {
		w.Header().Set("Content-Type", req.Format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(req.Entity)+"."+string(req.Format)))
	}

	if err := h.service.Export(r.Context(), tw, req); err != nil {
		if !tw.started {
			h.writeError(w, r, err)
			return
		}
		h.logger.Error("export interrupted", zap.Error(err), zap.String("entity", string(req.Entity)))
	}
}
