// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeOrderNotFound        = "ORDER_NOT_FOUND"
	ErrCodeInvalidSignature     = "INVALID_SIGNATURE"
	ErrCodeOrderCreationFailed  = "ORDER_CREATION_FAILED"
	ErrCodeSessionIssuance      = "SESSION_ISSUANCE_FAILED"
	ErrCodeUpstreamService      = "UPSTREAM_SERVICE_ERROR"
	ErrCodePersistence          = "PERSISTENCE_ERROR"
	ErrCodeAssistantUnavailable = "ASSISTANT_UNAVAILABLE"
)

// ErrPurchaseExists は同一注文IDの購入が既に記録済みであることを示す番兵エラー。
// 購入追記の冪等性チェックに使用する。
var ErrPurchaseExists = errors.New("purchase already recorded for order")

// NewUnauthorizedError は認証エラーを生成する。
// どの検証に失敗したかは意図的に区別しない（資格情報の探索攻撃への対策）。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "サインインに失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewBadRequestError は入力不備エラーを生成する。
func NewBadRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBadRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidAmountError は金額が不正な場合のエラーを生成する。
func NewInvalidAmountError(amount int64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("無効な金額です: %d", amount),
		Category: "validation",
		Action:   "金額は最小通貨単位の正の整数で指定してください。",
	}
}

// NewOrderNotFoundError は注文が見つからない場合のエラーを生成する。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %s", orderID),
		Category: "payment",
		Action:   "注文IDを確認してください。",
	}
}

// NewInvalidSignatureError は決済コールバックの署名不一致エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "決済署名の検証に失敗しました。",
		Category: "payment",
		Action:   "決済をやり直してください。問題が続く場合はサポートへ連絡してください。",
	}
}

// NewForbiddenOrderError は他ユーザーの注文に対する操作エラーを生成する。
func NewForbiddenOrderError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この注文に対する操作は許可されていません。",
		Category: "payment",
		Action:   "自分で作成した注文に対してのみ決済を完了できます。",
	}
}

// NewOrderCreationFailedError はゲートウェイ注文の作成失敗エラーを生成する。
// ゲートウェイの内部詳細は含めない。
func NewOrderCreationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOrderCreationFailed,
		Message:  "注文の作成に失敗しました。",
		Category: "payment",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSessionIssuanceError はセッション発行失敗エラーを生成する。
func NewSessionIssuanceError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionIssuance,
		Message:  "セッションの発行に失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUpstreamServiceError は外部サービス呼び出し失敗エラーを生成する。
func NewUpstreamServiceError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamService,
		Message:  fmt.Sprintf("外部サービスの呼び出しに失敗しました: %s", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPersistenceError は永続化失敗エラーを生成する。
func NewPersistenceError() *APIError {
	return &APIError{
		Code:     ErrCodePersistence,
		Message:  "データの保存に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAssistantUnavailableError はアシスタント連携が未設定の場合のエラーを生成する。
func NewAssistantUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeAssistantUnavailable,
		Message:  "アシスタント機能は現在利用できません。",
		Category: "system",
		Action:   "管理者に連絡してください。",
	}
}
