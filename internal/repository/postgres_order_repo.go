package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liveeazy/backend/internal/model"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

// Create はstatus=createdの注文レコードを作成する。
func (r *PostgresOrderRepo) Create(ctx context.Context, order *model.Order) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, amount, currency, product_name, receipt, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID, order.UserID, order.Amount, order.Currency,
		order.ProductName, order.Receipt, model.OrderStatusCreated, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// FindByID は指定IDの注文を取得する。見つからない場合はnilを返す。
func (r *PostgresOrderRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	order := &model.Order{}
	var paymentID, signature sql.NullString
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, currency, product_name, receipt, status,
		        payment_id, signature, created_at, completed_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(&order.ID, &order.UserID, &order.Amount, &order.Currency,
		&order.ProductName, &order.Receipt, &order.Status,
		&paymentID, &signature, &order.CreatedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	order.PaymentID = paymentID.String
	order.Signature = signature.String
	if completedAt.Valid {
		t := completedAt.Time
		order.CompletedAt = &t
	}

	return order, nil
}

// Complete は注文をcompletedに遷移させる。
// WHERE句のstatus条件により、並行する二重検証でも遷移は高々1回しか発生しない。
// 遷移が発生した場合はtrue、既にcompletedだった場合はfalseを返す。
func (r *PostgresOrderRepo) Complete(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, payment_id = $2, signature = $3, completed_at = $4
		 WHERE id = $5 AND status = $6`,
		model.OrderStatusCompleted, paymentID, signature, time.Now(),
		orderID, model.OrderStatusCreated,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListByUserID はユーザーの注文を作成日時の降順で最大limit件返す。
func (r *PostgresOrderRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount, currency, product_name, receipt, status,
		        payment_id, signature, created_at, completed_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		var order model.Order
		var paymentID, signature sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(&order.ID, &order.UserID, &order.Amount, &order.Currency,
			&order.ProductName, &order.Receipt, &order.Status,
			&paymentID, &signature, &order.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		order.PaymentID = paymentID.String
		order.Signature = signature.String
		if completedAt.Valid {
			t := completedAt.Time
			order.CompletedAt = &t
		}

		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return orders, nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
