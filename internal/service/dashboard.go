package service

import (
	"context"

	"github.com/mmeshcher/petcare-system/internal/period"
	"github.com/mmeshcher/petcare-system/internal/stats"
)

const defaultActivityLimit = 20

func (s *Service) snapshot(ctx context.Context, p string) (stats.Snapshot, period.Range, error) {
	r := period.Resolve(period.Parse(p), s.clock())
	snap, err := s.repo.Snapshot(ctx, r.PreviousStart, r.End)
	return snap, r, err
}

// Overview возвращает сводку дашборда за период с приростом к предыдущему периоду.
func (s *Service) Overview(ctx context.Context, p string) (stats.Overview, error) {
	snap, r, err := s.snapshot(ctx, p)
	if err != nil {
		return stats.Overview{}, err
	}
	return stats.DashboardOverview(snap, r), nil
}

// SalesSeries возвращает ряд заказов, выручки и записей по интервалам группировки.
func (s *Service) SalesSeries(ctx context.Context, p, groupBy string) ([]stats.SeriesPoint, error) {
	snap, r, err := s.snapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	return stats.SalesSeries(snap, r, stats.ParseGroupBy(groupBy)), nil
}

// CategoryDistribution возвращает распределение продаж по категориям за период.
func (s *Service) CategoryDistribution(ctx context.Context, p string) ([]stats.CategoryShare, error) {
	snap, r, err := s.snapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	return stats.CategoryDistribution(snap, r), nil
}

// TopProducts возвращает самые продаваемые товары за период.
func (s *Service) TopProducts(ctx context.Context, p string, limit int) ([]stats.TopProduct, error) {
	snap, r, err := s.snapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	return stats.TopProducts(snap, limit, r), nil
}

// Activities возвращает ленту последних переходов статусов по сущностям, созданным за период.
func (s *Service) Activities(ctx context.Context, p string, limit int) ([]stats.Activity, error) {
	snap, _, err := s.snapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	return stats.Activities(snap, limit), nil
}
