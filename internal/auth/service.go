// Package auth はクレデンシャルログイン、セッション管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/liveeazy/backend/internal/identity"
	"github.com/liveeazy/backend/internal/metrics"
	"github.com/liveeazy/backend/internal/model"
	"github.com/liveeazy/backend/internal/repository"
	"github.com/liveeazy/backend/internal/security"
)

// SessionIssuer はセッションアーティファクトの発行・失効のインターフェース。
type SessionIssuer interface {
	// Issue は検証済みクレームからセッションアーティファクトを発行する。
	Issue(claims *model.IdentityClaims) (string, error)
	// Revoke は指定subjectの全セッションを失効させる。
	Revoke(ctx context.Context, subjectID string) error
	// Expiry はセッションの有効期間を返す。
	Expiry() time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier  identity.Verifier
	userRepo  repository.UserRepository
	sessions  SessionIssuer
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	verifier identity.Verifier,
	userRepo repository.UserRepository,
	sessions SessionIssuer,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		verifier:  verifier,
		userRepo:  userRepo,
		sessions:  sessions,
		sanitizer: sanitizer,
		metrics:   collector,
	}
}

// Login はIdPのクレデンシャルを検証し、ローカルユーザーを同期して
// セッションアーティファクトを発行する。
// 初回ログイン時はusersレコードを自動作成し、2回目以降はプロフィールを更新する。
// クレデンシャル検証の失敗理由は呼び出し元に区別して返さない。
func (s *Service) Login(ctx context.Context, rawCredential string) (*model.User, string, error) {
	// 1. クレデンシャルを検証
	claims, err := s.verifier.Verify(ctx, rawCredential)
	if err != nil {
		slog.Warn("credential verification failed", slog.String("error", err.Error()))
		s.metrics.RecordLoginFailure()
		return nil, "", model.NewUnauthorizedError()
	}

	// 2. 表示名をサニタイズ（IdP経由でも自己申告値のため）
	claims.Name = s.sanitizer.Sanitize(claims.Name)

	// 3. ローカルユーザーを同期（存在しなければ作成、存在すれば更新）
	user, err := s.userRepo.Upsert(ctx, claims)
	if err != nil {
		return nil, "", fmt.Errorf("failed to upsert user: %w", err)
	}

	// 4. セッションアーティファクトを発行
	artifact, err := s.sessions.Issue(claims)
	if err != nil {
		slog.Error("session issuance failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordLoginFailure()
		return nil, "", model.NewSessionIssuanceError()
	}

	s.metrics.RecordLoginSuccess()
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, artifact, nil
}

// Logout は指定ユーザーの全セッションを失効させる。
// 失効リストへの書き込み失敗はログに残すのみで、ログアウト自体は成功扱いとする。
func (s *Service) Logout(ctx context.Context, subjectID string) {
	if subjectID == "" {
		return
	}

	if err := s.sessions.Revoke(ctx, subjectID); err != nil {
		slog.Error("session revocation failed",
			slog.String("user_id", subjectID),
			slog.String("error", err.Error()),
		)
		return
	}

	slog.Info("user logged out", slog.String("user_id", subjectID))
}

// GetCurrentUser はセッションのsubjectから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, subjectID string) (*model.User, error) {
	if subjectID == "" {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// SessionMaxAge はセッションCookieのmax-ageに使う有効期間を返す。
func (s *Service) SessionMaxAge() time.Duration {
	return s.sessions.Expiry()
}
