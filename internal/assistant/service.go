// Package assistant はアシスタント連携サービスへのプロキシを提供する。
//
// フロントエンドはアシスタント連携先を直接呼ばず、必ずこのプロキシを経由する。
// プロキシはセッションから解決したユーザー情報をリクエストに付与し、
// 連携先の認証情報やURLをクライアントから隠蔽する。
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/liveeazy/backend/internal/model"
	"github.com/liveeazy/backend/internal/repository"
)

// Service はアシスタント連携のビジネスロジックを提供する。
// baseURLが空の場合、連携は無効として全操作がエラーを返す。
type Service struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	userRepo   repository.UserRepository
}

// NewService はServiceを生成する。
// httpClientにはSSRF防止機能付きのクライアントを渡す。
func NewService(httpClient *http.Client, logger *slog.Logger, baseURL string, userRepo repository.UserRepository) *Service {
	return &Service{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		userRepo:   userRepo,
	}
}

// Enabled はアシスタント連携が設定済みかを返す。
func (s *Service) Enabled() bool {
	return s.baseURL != ""
}

// Chat はチャットリクエストを連携先に転送し、レスポンスをそのまま返す。
// リクエストボディはクライアントから受け取ったJSONをそのまま使い、
// セッションから解決したユーザー情報をヘッダーで付与する。
func (s *Service) Chat(ctx context.Context, session *model.Session, payload json.RawMessage) (json.RawMessage, error) {
	return s.forward(ctx, session, http.MethodPost, "/chat", payload)
}

// ListFiles は連携先のファイル一覧を取得する。
func (s *Service) ListFiles(ctx context.Context, session *model.Session) (json.RawMessage, error) {
	return s.forward(ctx, session, http.MethodGet, "/files", nil)
}

// forward はリクエストを連携先に転送する。
func (s *Service) forward(ctx context.Context, session *model.Session, method, path string, payload json.RawMessage) (json.RawMessage, error) {
	if !s.Enabled() {
		return nil, model.NewAssistantUnavailableError()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build assistant request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// セッションから解決したユーザー情報を付与する
	email, name := s.resolveIdentity(ctx, session)
	req.Header.Set("X-User-Id", session.SubjectID)
	req.Header.Set("X-User-Email", email)
	req.Header.Set("X-User-Name", name)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("assistant request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamServiceError("assistant")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewUpstreamServiceError("assistant")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Error("assistant returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewUpstreamServiceError("assistant")
	}

	return json.RawMessage(respBody), nil
}

// resolveIdentity はセッションからユーザー情報を解決する。
// セッションのクレームを優先し、欠けているフィールドのみ
// ユーザーディレクトリの値で補完する。
func (s *Service) resolveIdentity(ctx context.Context, session *model.Session) (email, name string) {
	email = session.Email
	name = session.Name
	if email != "" && name != "" {
		return email, name
	}

	user, err := s.userRepo.FindByID(ctx, session.SubjectID)
	if err != nil || user == nil {
		return email, name
	}
	if email == "" {
		email = user.Email
	}
	if name == "" {
		name = user.Name
	}
	return email, name
}
