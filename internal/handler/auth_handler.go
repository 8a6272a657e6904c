// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/liveeazy/backend/internal/middleware"
	"github.com/liveeazy/backend/internal/model"
	"github.com/liveeazy/backend/internal/session"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Login はIdPクレデンシャルを検証し、ユーザーとセッションアーティファクトを返す。
	Login(ctx context.Context, rawCredential string) (*model.User, string, error)
	// Logout は対象ユーザーのセッションを失効させる（ベストエフォート）。
	Logout(ctx context.Context, subjectID string)
	// GetCurrentUser は現在のユーザーレコードを取得する。
	GetCurrentUser(ctx context.Context, subjectID string) (*model.User, error)
	// SessionMaxAge はセッションCookieの有効期間を返す。
	SessionMaxAge() time.Duration
}

// PurchaseReader は購入情報の参照インターフェース。
// /api/me と決済ハンドラーで共用する。
type PurchaseReader interface {
	// GetPurchaseStatus は購入有無と最新の購入を返す。
	GetPurchaseStatus(ctx context.Context, userID string) (bool, *model.Purchase, error)
	// ListPurchases は購入一覧を購入日時の昇順（追記順）で返す。
	ListPurchases(ctx context.Context, userID string) ([]model.Purchase, error)
}

// AuthHandler はセッション認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	purchases PurchaseReader
	verifier  middleware.SessionVerifier
	cookies   *session.CookieWriter
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	service AuthServiceInterface,
	purchases PurchaseReader,
	verifier middleware.SessionVerifier,
	cookies *session.CookieWriter,
) *AuthHandler {
	return &AuthHandler{
		service:   service,
		purchases: purchases,
		verifier:  verifier,
		cookies:   cookies,
	}
}

// sessionLoginRequest はセッションログインリクエストのボディ。
type sessionLoginRequest struct {
	IDToken string `json:"idToken"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	DisplayName string             `json:"displayName"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	Purchases   []purchaseResponse `json:"purchases"`
	LastPayment *purchaseResponse  `json:"lastPayment"`
}

// SessionLogin はIdPトークンを検証しセッションCookieを発行する。
// POST /api/sessionLogin
func (h *AuthHandler) SessionLogin(w http.ResponseWriter, r *http.Request) {
	var req sessionLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.IDToken == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("idTokenが指定されていません"))
		return
	}

	user, artifact, err := h.service.Login(r.Context(), req.IDToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookies.Set(w, artifact, h.service.SessionMaxAge())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"uid":    user.ID,
	})
}

// SessionLogout はセッションCookieを破棄する。
// Cookieの有無や検証結果に関わらず常に200を返す。
// POST /api/sessionLogout
func (h *AuthHandler) SessionLogout(w http.ResponseWriter, r *http.Request) {
	// Cookieが検証できた場合のみ失効レコードを残す（ベストエフォート）
	if cookie, err := r.Cookie(h.cookies.Name()); err == nil && cookie.Value != "" {
		if sess, verifyErr := h.verifier.Verify(r.Context(), cookie.Value); verifyErr == nil {
			h.service.Logout(r.Context(), sess.SubjectID)
		}
	}

	h.cookies.Clear(w)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Me は現在のログインユーザー情報を購入情報つきで返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	purchases, err := h.purchases.ListPurchases(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	_, last, err := h.purchases.GetPurchaseStatus(r.Context(), userID)
	if err != nil {
		slog.Error("failed to load last payment", slog.String("user_id", userID), slog.String("error", err.Error()))
		last = nil
	}

	resp := userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
		Purchases:   toPurchaseResponses(purchases),
	}
	if last != nil {
		lp := toPurchaseResponse(last)
		resp.LastPayment = &lp
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
