package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/liveeazy/backend/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Upsert は検証済みクレームでユーザーを作成または更新する。
// ON CONFLICTの単一ステートメントで行うため、同一subjectへの並行ログインでも
// read-modify-writeの競合は発生しない。空のクレームフィールドは
// NULLIF/COALESCEにより既存値を上書きしない。
func (r *PostgresUserRepo) Upsert(ctx context.Context, claims *model.IdentityClaims) (*model.User, error) {
	now := time.Now()
	user := &model.User{}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (id) DO UPDATE SET
		     email      = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
		     name       = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, email, name, created_at, updated_at`,
		claims.SubjectID, claims.Email, claims.Name, now,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// ListPurchases はユーザーの購入一覧を購入日時の昇順で返す。
func (r *PostgresUserRepo) ListPurchases(ctx context.Context, userID string) ([]model.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, order_id, product_name, amount, currency, purchase_date
		 FROM purchases
		 WHERE user_id = $1
		 ORDER BY purchase_date ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	purchases := make([]model.Purchase, 0)
	for rows.Next() {
		var p model.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.OrderID, &p.ProductName, &p.Amount, &p.Currency, &p.PurchaseDate); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}

	return purchases, nil
}

// LastPayment はユーザーの最新の購入を返す。購入がない場合はnilを返す。
func (r *PostgresUserRepo) LastPayment(ctx context.Context, userID string) (*model.Purchase, error) {
	p := &model.Purchase{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, order_id, product_name, amount, currency, purchase_date
		 FROM purchases
		 WHERE user_id = $1
		 ORDER BY purchase_date DESC
		 LIMIT 1`,
		userID,
	).Scan(&p.ID, &p.UserID, &p.OrderID, &p.ProductName, &p.Amount, &p.Currency, &p.PurchaseDate)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find last payment: %w", err)
	}

	return p, nil
}

// FindPurchaseByOrderID は指定注文IDの購入を取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindPurchaseByOrderID(ctx context.Context, orderID string) (*model.Purchase, error) {
	p := &model.Purchase{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, order_id, product_name, amount, currency, purchase_date
		 FROM purchases
		 WHERE order_id = $1`,
		orderID,
	).Scan(&p.ID, &p.UserID, &p.OrderID, &p.ProductName, &p.Amount, &p.Currency, &p.PurchaseDate)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find purchase by order: %w", err)
	}

	return p, nil
}

// AppendPurchase は購入事実を追記する。
// UNIQUE(order_id)制約により同一注文の二重記録はDBレベルで拒否され、
// その場合はmodel.ErrPurchaseExistsを返す。
func (r *PostgresUserRepo) AppendPurchase(ctx context.Context, purchase *model.Purchase) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO purchases (id, user_id, order_id, product_name, amount, currency, purchase_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		purchase.ID, purchase.UserID, purchase.OrderID, purchase.ProductName,
		purchase.Amount, purchase.Currency, purchase.PurchaseDate,
	)
	if err != nil {
		var pqErr *pq.Error
		// 23505 = unique_violation
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.ErrPurchaseExists
		}
		return fmt.Errorf("failed to append purchase: %w", err)
	}

	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
