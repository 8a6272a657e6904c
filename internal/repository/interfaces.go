// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/liveeazy/backend/internal/model"
)

// UserRepository はユーザーディレクトリの永続化インターフェース。
type UserRepository interface {
	// Upsert は検証済みクレームでユーザーを作成または更新する。
	// 既存レコードには空でないクレームフィールドのみをマージし（last-write-wins）、
	// updated_atを更新する。同一クレームでの再実行は冪等。
	Upsert(ctx context.Context, claims *model.IdentityClaims) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// ListPurchases はユーザーの購入一覧を購入日時の昇順で返す。
	ListPurchases(ctx context.Context, userID string) ([]model.Purchase, error)

	// LastPayment はユーザーの最新の購入を返す。購入がない場合はnilを返す。
	LastPayment(ctx context.Context, userID string) (*model.Purchase, error)

	// FindPurchaseByOrderID は指定注文IDの購入を取得する。見つからない場合はnilを返す。
	FindPurchaseByOrderID(ctx context.Context, orderID string) (*model.Purchase, error)

	// AppendPurchase は購入事実を追記する。
	// 同一order_idが既に存在する場合はmodel.ErrPurchaseExistsを返す。
	AppendPurchase(ctx context.Context, purchase *model.Purchase) error
}

// OrderRepository は注文レコードの永続化インターフェース。
type OrderRepository interface {
	// Create はstatus=createdの注文レコードを作成する。
	Create(ctx context.Context, order *model.Order) error

	// FindByID は指定IDの注文を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Order, error)

	// Complete は注文をcompletedに遷移させる。
	// status=createdの場合のみ更新する条件付きUPDATE（compare-and-swap）で、
	// 遷移が発生した場合はtrueを返す。既にcompletedの場合はfalseを返す。
	Complete(ctx context.Context, orderID, paymentID, signature string) (bool, error)

	// ListByUserID はユーザーの注文を作成日時の降順で最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]model.Order, error)
}

// RevocationRepository はセッション失効リストの永続化インターフェース。
type RevocationRepository interface {
	// Revoke は指定subjectの全セッションを現時刻で失効させる。
	Revoke(ctx context.Context, userID string) error

	// RevokedAt は指定subjectの失効時刻を返す。失効していない場合はnilを返す。
	RevokedAt(ctx context.Context, userID string) (*time.Time, error)
}
