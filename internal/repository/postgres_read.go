package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/petcare-system/internal/model"
	"github.com/mmeshcher/petcare-system/internal/stats"
)

// GetProducts возвращает товары каталога по идентификаторам. Неизвестные идентификаторы пропускаются.
func (r *PostgresRepository) GetProducts(ctx context.Context, ids []string) (map[string]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, category_id, price, image, stock, created_at FROM products WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	res := make(map[string]model.Product, len(ids))
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.Image, &p.Stock, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Snapshot читает согласованный срез данных для дашборда в одной транзакции REPEATABLE READ.
// Заказы и записи ограничены интервалом [since, until), пользователи зарегистрированы до until.
func (r *PostgresRepository) Snapshot(ctx context.Context, since, until time.Time) (stats.Snapshot, error) {
	var s stats.Snapshot

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return s, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := forEachUser(ctx, tx, `WHERE created_at < $1`, []any{until}, func(u model.User) error {
		s.Users = append(s.Users, u)
		return nil
	}); err != nil {
		return s, err
	}

	if err := forEachProduct(ctx, tx, func(p model.Product) error {
		s.Products = append(s.Products, p)
		return nil
	}); err != nil {
		return s, err
	}

	catRows, err := tx.Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return s, fmt.Errorf("select categories: %w", err)
	}
	for catRows.Next() {
		var c model.Category
		if err := catRows.Scan(&c.ID, &c.Name); err != nil {
			catRows.Close()
			return s, fmt.Errorf("scan category: %w", err)
		}
		s.Categories = append(s.Categories, c)
	}
	catRows.Close()
	if err := catRows.Err(); err != nil {
		return s, fmt.Errorf("rows error: %w", err)
	}

	if err := forEachOrder(ctx, tx, since, until, func(o model.Order) error {
		s.Orders = append(s.Orders, o)
		return nil
	}); err != nil {
		return s, err
	}

	apptRows, err := tx.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id`,
		since, until,
	)
	if err != nil {
		return s, fmt.Errorf("select appointments: %w", err)
	}
	for apptRows.Next() {
		a, err := scanAppointment(apptRows)
		if err != nil {
			apptRows.Close()
			return s, fmt.Errorf("scan appointment: %w", err)
		}
		s.Appointments = append(s.Appointments, *a)
	}
	apptRows.Close()
	if err := apptRows.Err(); err != nil {
		return s, fmt.Errorf("rows error: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return s, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return s, nil
}

// StreamUsers передаёт в fn пользователей по одному, не загружая выборку целиком.
func (r *PostgresRepository) StreamUsers(ctx context.Context, fn func(model.User) error) error {
	return r.readOnly(ctx, func(tx pgx.Tx) error {
		return forEachUser(ctx, tx, "", nil, fn)
	})
}

// StreamProducts передаёт в fn товары каталога по одному.
func (r *PostgresRepository) StreamProducts(ctx context.Context, fn func(model.Product) error) error {
	return r.readOnly(ctx, func(tx pgx.Tx) error {
		return forEachProduct(ctx, tx, fn)
	})
}

// StreamOrders передаёт в fn заказы, созданные в интервале [from, to).
func (r *PostgresRepository) StreamOrders(ctx context.Context, from, to time.Time, fn func(model.Order) error) error {
	return r.readOnly(ctx, func(tx pgx.Tx) error {
		return forEachOrder(ctx, tx, from, to, fn)
	})
}

func (r *PostgresRepository) readOnly(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func forEachUser(ctx context.Context, tx pgx.Tx, where string, args []any, fn func(model.User) error) error {
	rows, err := tx.Query(ctx, `SELECT id, name, email, role, created_at FROM users `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u    model.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt); err != nil {
			return fmt.Errorf("scan user: %w", err)
		}
		u.Role = model.Role(role)
		if err := fn(u); err != nil {
			return err
		}
	}

	return rows.Err()
}

func forEachProduct(ctx context.Context, tx pgx.Tx, fn func(model.Product) error) error {
	rows, err := tx.Query(ctx, `SELECT id, name, category_id, price, image, stock, created_at FROM products ORDER BY created_at, id`)
	if err != nil {
		return fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.Image, &p.Stock, &p.CreatedAt); err != nil {
			return fmt.Errorf("scan product: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}

	return rows.Err()
}

func forEachOrder(ctx context.Context, tx pgx.Tx, from, to time.Time, fn func(model.Order) error) error {
	rows, err := tx.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id`,
		from, to,
	)
	if err != nil {
		return fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return fmt.Errorf("scan order: %w", err)
		}
		if err := fn(*o); err != nil {
			return err
		}
	}

	return rows.Err()
}
