// Package session は署名付きセッションCookieの発行・検証・失効を提供する。
//
// セッションはサーバー側に個別保存しないステートレスなJWTで、信頼は
// 署名とsubjectごとの失効リストに基づく。状態遷移は
// Unissued → Valid → {Expired | Revoked} で、終端状態から戻ることはない。
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/liveeazy/backend/internal/model"
	"github.com/liveeazy/backend/internal/repository"
)

// NowFunc は現在時刻を返す。テストで差し替え可能。
var NowFunc = time.Now

// Manager はセッションアーティファクトの発行・検証・失効を行う。
type Manager struct {
	secret         []byte
	expiry         time.Duration
	revocationRepo repository.RevocationRepository
}

// NewManager はManagerを生成する。
// expirySecondsはセッションの有効期間（秒）。
func NewManager(secret string, expirySeconds int, revocationRepo repository.RevocationRepository) *Manager {
	return &Manager{
		secret:         []byte(secret),
		expiry:         time.Duration(expirySeconds) * time.Second,
		revocationRepo: revocationRepo,
	}
}

// Expiry はセッションの有効期間を返す。Cookieのmax-age設定に使用する。
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// Issue は検証済みクレームからセッションアーティファクトを発行する。
// クレデンシャルが既に期限切れの場合は発行を拒否する。
func (m *Manager) Issue(claims *model.IdentityClaims) (string, error) {
	now := NowFunc()

	if !claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(now) {
		return "", fmt.Errorf("credential already expired at %s", claims.ExpiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   claims.SubjectID,
		"email": claims.Email,
		"name":  claims.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(m.expiry).Unix(),
		"jti":   uuid.New().String(),
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Verify はセッションアーティファクトを検証し、アイデンティティを復元する。
// 署名・有効期限・失効リストの3つを順に確認する。
// 失効時刻がトークン発行時刻以降の場合、そのトークンは無効として扱う。
func (m *Manager) Verify(ctx context.Context, artifact string) (*model.Session, error) {
	token, err := jwt.Parse(artifact, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(NowFunc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("session token has empty subject")
	}

	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return nil, fmt.Errorf("session token has no issued-at claim")
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, fmt.Errorf("session token has no expiry claim")
	}

	// 失効リストの確認
	revokedAt, err := m.revocationRepo.RevokedAt(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revokedAt != nil && !issuedAt.Time.After(*revokedAt) {
		return nil, fmt.Errorf("session revoked at %s", revokedAt)
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return &model.Session{
		SubjectID: sub,
		Email:     email,
		Name:      name,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Revoke は指定subjectの全セッションを失効させる。
func (m *Manager) Revoke(ctx context.Context, subjectID string) error {
	if err := m.revocationRepo.Revoke(ctx, subjectID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}
