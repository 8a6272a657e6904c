// Package identity は外部IdPが発行したクレデンシャルの検証を提供する。
package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/liveeazy/backend/internal/model"
)

// Verifier はクレデンシャル検証のインターフェース。
// 署名・有効期限の検証はIdPの公開鍵に対して行われ、副作用を持たない。
type Verifier interface {
	// Verify はクレデンシャル文字列を検証し、クレームを抽出する。
	// 署名不一致・期限切れ・不正な形式はいずれもエラーとなり、
	// 呼び出し側はどの検証に失敗したかを区別しない。
	Verify(ctx context.Context, rawToken string) (*model.IdentityClaims, error)
}

// OIDCVerifier はOIDCのIDトークンをクレデンシャルとして検証する実装。
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier はIdPのディスカバリエンドポイントから検証器を構築する。
// 公開鍵セット（JWKS）の取得はoidcライブラリが内部でキャッシュする。
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover identity provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// idTokenClaims はIDトークンから抽出するクレーム。
type idTokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Verify はIDトークンの署名と有効期限を検証し、クレームを抽出する。
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*model.IdentityClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify credential: %w", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}

	if idToken.Subject == "" {
		return nil, fmt.Errorf("credential has empty subject")
	}

	return &model.IdentityClaims{
		SubjectID: idToken.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		IssuedAt:  idToken.IssuedAt,
		ExpiresAt: idToken.Expiry,
	}, nil
}

// compile-time interface check
var _ Verifier = (*OIDCVerifier)(nil)
