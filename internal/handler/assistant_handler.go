package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/liveeazy/backend/internal/middleware"
	"github.com/liveeazy/backend/internal/model"
)

// assistantRequestBodyLimit はアシスタントへ転送するリクエストボディの上限。
const assistantRequestBodyLimit = 1 << 20 // 1MB

// AssistantServiceInterface はアシスタントハンドラーが必要とするサービスインターフェース。
type AssistantServiceInterface interface {
	// Enabled はアシスタント連携が構成されているかを返す。
	Enabled() bool
	// Chat はチャットリクエストをアシスタントサービスへ転送する。
	Chat(ctx context.Context, session *model.Session, payload json.RawMessage) (json.RawMessage, error)
	// ListFiles はファイル一覧リクエストをアシスタントサービスへ転送する。
	ListFiles(ctx context.Context, session *model.Session) (json.RawMessage, error)
}

// AssistantHandler はアシスタントプロキシのHTTPハンドラー。
type AssistantHandler struct {
	service AssistantServiceInterface
}

// NewAssistantHandler はAssistantHandlerを生成する。
func NewAssistantHandler(service AssistantServiceInterface) *AssistantHandler {
	return &AssistantHandler{service: service}
}

// Chat はチャットメッセージをアシスタントサービスへ中継する。
// POST /api/assistant/chat
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if !h.service.Enabled() {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewAssistantUnavailableError())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, assistantRequestBodyLimit))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("リクエストボディの読み取りに失敗しました"))
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("正しいJSON形式でリクエストしてください"))
		return
	}

	reply, err := h.service.Chat(r.Context(), sess, body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(reply)
}

// ListFiles はアシスタントサービスのファイル一覧を中継する。
// GET /api/assistant/files
func (h *AssistantHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if !h.service.Enabled() {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewAssistantUnavailableError())
		return
	}

	files, err := h.service.ListFiles(r.Context(), sess)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(files)
}
