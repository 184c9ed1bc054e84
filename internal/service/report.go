package service

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/period"
	"github.com/mmeshcher/petcare-system/internal/report"
	"github.com/mmeshcher/petcare-system/internal/stats"
)

// ExportRequest описывает выгрузку отчёта.
type ExportRequest struct {
	Entity report.Entity
	Format report.Format
	Period string
}

// Export выгружает отчёт в w. Пользователи, заказы и товары читаются из хранилища потоково.
func (s *Service) Export(ctx context.Context, w io.Writer, req ExportRequest) error {
	if !req.Entity.Valid() {
		return fmt.Errorf("%w: unknown report %q", model.ErrValidation, req.Entity)
	}

	var err error
	switch req.Entity {
	case report.Users:
		err = s.exportUsers(ctx, w, req.Format)
	case report.Products:
		err = s.exportProducts(ctx, w, req.Format)
	case report.Orders:
		err = s.exportOrders(ctx, w, req)
	case report.Revenue:
		err = s.exportRevenue(ctx, w, req)
	case report.Activities:
		err = s.exportActivities(ctx, w, req)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", req.Entity, err)
	}

	s.logger.Info("report exported", zap.String("entity", string(req.Entity)), zap.String("format", string(req.Format)))
	return nil
}

func (s *Service) exportUsers(ctx context.Context, w io.Writer, f report.Format) error {
	rw, err := report.NewWriter(w, f, report.UserColumns)
	if err != nil {
		return err
	}
	if err := s.repo.StreamUsers(ctx, func(u model.User) error {
		return rw.Write(report.UserRow(u)...)
	}); err != nil {
		return err
	}
	return rw.Close()
}

func (s *Service) exportProducts(ctx context.Context, w io.Writer, f report.Format) error {
	rw, err := report.NewWriter(w, f, report.ProductColumns)
	if err != nil {
		return err
	}
	if err := s.repo.StreamProducts(ctx, func(p model.Product) error {
		return rw.Write(report.ProductRow(p)...)
	}); err != nil {
		return err
	}
	return rw.Close()
}

func (s *Service) exportOrders(ctx context.Context, w io.Writer, req ExportRequest) error {
	r := period.Resolve(period.Parse(req.Period), s.clock())

	rw, err := report.NewWriter(w, req.Format, report.OrderColumns)
	if err != nil {
		return err
	}
	if err := s.repo.StreamOrders(ctx, r.Start, r.End, func(o model.Order) error {
		return rw.Write(report.OrderRow(o)...)
	}); err != nil {
		return err
	}
	return rw.Close()
}

func (s *Service) exportRevenue(ctx context.Context, w io.Writer, req ExportRequest) error {
	points, err := s.SalesSeries(ctx, req.Period, string(stats.ByDay))
	if err != nil {
		return err
	}

	rw, err := report.NewWriter(w, req.Format, report.RevenueColumns)
	if err != nil {
		return err
	}
	for _, p := range points {
		if err := rw.Write(report.RevenueRow(p)...); err != nil {
			return err
		}
	}
	return rw.Close()
}

func (s *Service) exportActivities(ctx context.Context, w io.Writer, req ExportRequest) error {
	snap, _, err := s.snapshot(ctx, req.Period)
	if err != nil {
		return err
	}

	rw, err := report.NewWriter(w, req.Format, report.ActivityColumns)
	if err != nil {
		return err
	}
	for _, a := range stats.Activities(snap, 0) {
		if err := rw.Write(report.ActivityRow(a)...); err != nil {
			return err
		}
	}
	return rw.Close()
}
