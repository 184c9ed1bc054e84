package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/model"
)

const orderNumberConstraint = "orders_number_key"

const orderColumns = `id, number, user_id, items, shipping_address, payment_method, payment_status, status,
	subtotal, shipping_fee, discount, total, cancel_reason, cancelled_at, delivered_at,
	payment, payment_proof, history, version, created_at, updated_at`

type orderDocs struct {
	items, address, payment, history []byte
}

func marshalOrderDocs(o *model.Order) (orderDocs, error) {
	var (
		d   orderDocs
		err error
	)
	if d.items, err = marshalJSON(o.Items); err != nil {
		return d, err
	}
	if d.address, err = marshalJSON(o.ShippingAddress); err != nil {
		return d, err
	}
	if d.payment, err = marshalJSON(o.Payment); err != nil {
		return d, err
	}
	if d.history, err = marshalJSON(o.History); err != nil {
		return d, err
	}
	return d, nil
}

// InsertOrder сохраняет новый заказ вместе с событиями.
func (r *PostgresRepository) InsertOrder(ctx context.Context, o *model.Order, evs ...events.Event) error {
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO orders (`+orderColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			o.ID, o.Number, o.UserID, docs.items, docs.address, string(o.PaymentMethod), string(o.PaymentStatus), string(o.Status),
			o.Subtotal, o.ShippingFee, o.Discount, o.Total, o.CancelReason, o.CancelledAt, o.DeliveredAt,
			docs.payment, o.PaymentProof, docs.history, o.Version, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, orderNumberConstraint) {
				return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.Number)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return insertEvents(ctx, tx, evs)
	})
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return r.getOrderBy(ctx, "id", id)
}

// GetOrderByNumber возвращает заказ по номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	return r.getOrderBy(ctx, "number", number)
}

func (r *PostgresRepository) getOrderBy(ctx context.Context, column, value string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+column+` = $1`, value)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", model.ErrNotFound, value)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// UpdateOrder сохраняет заказ, если его версия в БД равна expectedVersion, и увеличивает версию.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, o *model.Order, expectedVersion int64, evs ...events.Event) error {
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE orders
			 SET payment_status = $3, status = $4, subtotal = $5, shipping_fee = $6, discount = $7, total = $8,
			     cancel_reason = $9, cancelled_at = $10, delivered_at = $11, payment = $12, payment_proof = $13,
			     history = $14, version = version + 1, updated_at = $15
			 WHERE id = $1 AND version = $2`,
			o.ID, expectedVersion, string(o.PaymentStatus), string(o.Status), o.Subtotal, o.ShippingFee, o.Discount, o.Total,
			o.CancelReason, o.CancelledAt, o.DeliveredAt, docs.payment, o.PaymentProof, docs.history, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrStale(ctx, tx, "orders", o.ID)
		}
		return insertEvents(ctx, tx, evs)
	})
	if err != nil {
		return err
	}

	o.Version = expectedVersion + 1
	return nil
}

// ListOrders возвращает заказы по фильтру, новые сверху.
func (r *PostgresRepository) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", string(f.PaymentStatus))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, normalizeLimit(f.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	return r.queryOrders(ctx, query, args...)
}

// OrdersAwaitingGateway возвращает заказы, оплату которых должен подтвердить платёжный шлюз.
func (r *PostgresRepository) OrdersAwaitingGateway(ctx context.Context, limit int) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE payment_status = $1 AND payment_method IN ($2, $3) AND status NOT IN ($4, $5)
		 ORDER BY updated_at
		 LIMIT $6`,
		string(model.PaymentAwaitingPayment), string(model.PaymentCreditCard), string(model.PaymentEWallet),
		string(model.OrderCancelled), string(model.OrderRefunded), normalizeLimit(limit),
	)
}

func (r *PostgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o             model.Order
		method        string
		paymentStatus string
		status        string
		docs          orderDocs
	)

	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &docs.items, &docs.address, &method, &paymentStatus, &status,
		&o.Subtotal, &o.ShippingFee, &o.Discount, &o.Total, &o.CancelReason, &o.CancelledAt, &o.DeliveredAt,
		&docs.payment, &o.PaymentProof, &docs.history, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(docs.items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(docs.address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	if err := json.Unmarshal(docs.payment, &o.Payment); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	if err := json.Unmarshal(docs.history, &o.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	o.PaymentMethod = model.PaymentMethod(method)
	o.PaymentStatus = model.PaymentStatus(paymentStatus)
	o.Status = model.OrderStatus(status)

	return &o, nil
}
