// Package model はドメインモデルを定義する。
package model

import "time"

// OrderStatus は注文レコードの状態を表す。
// 遷移は created → completed の1回のみ。
type OrderStatus string

const (
	// OrderStatusCreated はゲートウェイ側の注文作成直後の状態。
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusCompleted は決済検証が完了した終端状態。
	OrderStatusCompleted OrderStatus = "completed"
)

// Order は決済試行ごとのローカル注文レコードを表す。
// IDはゲートウェイが採番した注文ID。UserIDは作成後不変で、
// 検証時に所有権チェックに使用される。
type Order struct {
	ID          string
	UserID      string
	Amount      int64 // 最小通貨単位
	Currency    string
	ProductName string
	Receipt     string
	Status      OrderStatus
	PaymentID   string // 完了後のみ
	Signature   string // 完了後のみ
	CreatedAt   time.Time
	CompletedAt *time.Time
}
