package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/paymentgw"
)

// RunPaymentSync периодически сверяет с платёжным шлюзом заказы, ожидающие оплаты картой или кошельком.
// Блокируется до отмены контекста; без шлюза сразу возвращается.
func (s *Service) RunPaymentSync(ctx context.Context) {
	if s.gateway == nil {
		s.logger.Info("payment gateway sync disabled")
		return
	}

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncPayments(ctx)
		}
	}
}

// SyncPayments обрабатывает одну пачку заказов и возвращает число применённых решений шлюза.
func (s *Service) SyncPayments(ctx context.Context) int {
	orders, err := s.repo.OrdersAwaitingGateway(ctx, s.cfg.SyncBatchSize)
	if err != nil {
		s.logger.Error("load orders awaiting gateway", zap.Error(err))
		return 0
	}

	applied := 0
	for _, o := range orders {
		tx, err := s.fetchTransaction(ctx, o.Number)
		if err != nil {
			if ctx.Err() != nil {
				return applied
			}
			if !errors.Is(err, paymentgw.ErrNotRegistered) {
				s.logger.Warn("payment gateway request failed", zap.String("number", o.Number), zap.Error(err))
			}
			continue
		}

		switch tx.Status {
		case paymentgw.StatusPaid:
			_, err = s.confirmPayment(ctx, model.SystemActor, o.ID, "confirmed by payment gateway", func(p *model.PaymentDetails) {
				if tx.CardLast4 != "" {
					p.CardLast4 = tx.CardLast4
				}
				if tx.WalletTransactionID != "" {
					p.WalletTransactionID = tx.WalletTransactionID
				}
			})
		case paymentgw.StatusFailed:
			_, err = s.FailPayment(ctx, model.SystemActor, o.ID, tx.Reason)
		default:
			continue
		}

		if err != nil {
			if errors.Is(err, model.ErrAlreadyPaid) || errors.Is(err, model.ErrConflict) {
				s.logger.Debug("gateway decision skipped", zap.String("number", o.Number), zap.Error(err))
				continue
			}
			s.logger.Error("apply gateway decision", zap.String("number", o.Number), zap.Error(err))
			continue
		}
		applied++
	}
	return applied
}

// fetchTransaction запрашивает транзакцию заказа. После ответа 429 ждёт Retry-After
// и повторяет запрос для того же заказа ровно один раз.
func (s *Service) fetchTransaction(ctx context.Context, number string) (*paymentgw.Transaction, error) {
	tx, err := s.gateway.GetTransaction(ctx, number)

	var rl *paymentgw.RateLimitError
	if !errors.As(err, &rl) {
		return tx, err
	}
	if !sleepCtx(ctx, rl.RetryAfter) {
		return nil, ctx.Err()
	}
	return s.gateway.GetTransaction(ctx, number)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
