package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/liveeazy/backend/internal/middleware"
	"github.com/liveeazy/backend/internal/model"
)

// paymentHistoryLimit は注文履歴APIが返す最大件数。
const paymentHistoryLimit = 10

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	// CreateOrder はゲートウェイに注文を作成しローカルレコードを残す。
	CreateOrder(ctx context.Context, session *model.Session, amount int64, currency, productName string) (*model.Order, error)
	// VerifyPayment は決済コールバックの署名を検証し購入を記録する。
	VerifyPayment(ctx context.Context, session *model.Session, orderID, paymentID, signature string) (*model.Purchase, error)
	// GetPaymentHistory は注文履歴を新しい順に最大limit件返す。
	GetPaymentHistory(ctx context.Context, userID string, limit int) ([]model.Order, error)
	PurchaseReader
}

// PaymentHandler は決済関連のHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
	keyID   string // フロントエンドのチェックアウトに渡すゲートウェイ公開キー
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface, keyID string) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		keyID:   keyID,
	}
}

// createOrderRequest は注文作成リクエストのボディ。
type createOrderRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ProductName string `json:"productName"`
}

// verifyPaymentRequest は決済検証リクエストのボディ。
// フィールド名はゲートウェイのチェックアウトコールバックに合わせる。
type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// orderResponse は注文情報のAPIレスポンス。
type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// orderHistoryResponse は注文履歴のAPIレスポンス。
type orderHistoryResponse struct {
	ID          string     `json:"id"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	ProductName string     `json:"productName"`
	Receipt     string     `json:"receipt"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// purchaseResponse は購入情報のAPIレスポンス。
type purchaseResponse struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"orderId"`
	ProductName  string    `json:"productName"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	PurchaseDate time.Time `json:"purchaseDate"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// CreateOrder は決済注文を作成する。
// POST /api/payment/create-order
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	order, err := h.service.CreateOrder(r.Context(), sess, req.Amount, req.Currency, req.ProductName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"order": orderResponse{
			ID:       order.ID,
			Amount:   order.Amount,
			Currency: order.Currency,
			Receipt:  order.Receipt,
		},
		"key": h.keyID,
	})
}

// VerifyPayment は決済コールバックを検証し購入を確定する。
// POST /api/payment/verify-payment
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	purchase, err := h.service.VerifyPayment(r.Context(), sess, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"message":  "決済が確認されました。",
		"purchase": toPurchaseResponse(purchase),
	})
}

// PurchaseStatus はユーザーの購入状況を返す。
// GET /api/payment/purchase-status
func (h *PaymentHandler) PurchaseStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	hasPurchased, last, err := h.service.GetPurchaseStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	purchases, err := h.service.ListPurchases(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"success":      true,
		"hasPurchased": hasPurchased,
		"purchases":    toPurchaseResponses(purchases),
		"lastPayment":  nil,
	}
	if last != nil {
		resp["lastPayment"] = toPurchaseResponse(last)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// PaymentHistory はユーザーの直近の注文履歴を返す。
// 未完了の注文（status=created）も含む。
// GET /api/payment/payment-history
func (h *PaymentHandler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	orders, err := h.service.GetPaymentHistory(r.Context(), userID, paymentHistoryLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]orderHistoryResponse, len(orders))
	for i, o := range orders {
		results[i] = orderHistoryResponse{
			ID:          o.ID,
			Amount:      o.Amount,
			Currency:    o.Currency,
			ProductName: o.ProductName,
			Receipt:     o.Receipt,
			Status:      string(o.Status),
			CreatedAt:   o.CreatedAt,
			CompletedAt: o.CompletedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"payments": results,
	})
}

// toPurchaseResponse はドメインモデルをAPIレスポンス型に変換する。
func toPurchaseResponse(p *model.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:           p.ID,
		OrderID:      p.OrderID,
		ProductName:  p.ProductName,
		Amount:       p.Amount,
		Currency:     p.Currency,
		PurchaseDate: p.PurchaseDate,
	}
}

// toPurchaseResponses は購入一覧をAPIレスポンス型に変換する。
// nilスライスでも空配列としてシリアライズされるようにする。
func toPurchaseResponses(purchases []model.Purchase) []purchaseResponse {
	results := make([]purchaseResponse, len(purchases))
	for i := range purchases {
		results[i] = toPurchaseResponse(&purchases[i])
	}
	return results
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeBadRequest, model.ErrCodeInvalidAmount, model.ErrCodeInvalidSignature:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeOrderNotFound:
		return http.StatusNotFound
	case model.ErrCodeOrderCreationFailed, model.ErrCodeUpstreamService:
		return http.StatusBadGateway
	case model.ErrCodeAssistantUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeSessionIssuance, model.ErrCodePersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
