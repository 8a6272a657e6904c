// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// IDは外部IdPが発行するsubject IDと一致する。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdentityClaims は検証済みクレデンシャルから抽出したクレームを表す。
// 永続化せず、ユーザーレコードの更新にのみ使用する。
type IdentityClaims struct {
	SubjectID string
	Email     string // 省略可
	Name      string // 省略可
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Purchase は完了した購入の事実を表す。
// ユーザーごとに追記のみで、同一OrderIDは高々1件しか存在しない。
type Purchase struct {
	ID           string
	UserID       string
	OrderID      string
	ProductName  string
	Amount       int64 // 最小通貨単位（パイサ等）
	Currency     string
	PurchaseDate time.Time
}

// Session は検証済みセッションCookieから復元したアイデンティティを表す。
// セッションガードを通過したリクエストでのみ有効。
type Session struct {
	SubjectID string
	Email     string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
