package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRevocationRepo はPostgreSQLを使用したセッション失効リポジトリ。
// セッション自体はサーバー側に保存しないため、subjectごとの失効時刻のみを持つ。
type PostgresRevocationRepo struct {
	db *sql.DB
}

// NewPostgresRevocationRepo はPostgresRevocationRepoを生成する。
func NewPostgresRevocationRepo(db *sql.DB) *PostgresRevocationRepo {
	return &PostgresRevocationRepo{db: db}
}

// Revoke は指定subjectの全セッションを現時刻で失効させる。
// 再ログアウト時は失効時刻を前進させる。
func (r *PostgresRevocationRepo) Revoke(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_revocations (user_id, revoked_at)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET revoked_at = EXCLUDED.revoked_at`,
		userID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}

// RevokedAt は指定subjectの失効時刻を返す。失効していない場合はnilを返す。
func (r *PostgresRevocationRepo) RevokedAt(ctx context.Context, userID string) (*time.Time, error) {
	var revokedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT revoked_at FROM session_revocations WHERE user_id = $1`,
		userID,
	).Scan(&revokedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find revocation: %w", err)
	}

	return &revokedAt, nil
}

// compile-time interface check
var _ RevocationRepository = (*PostgresRevocationRepo)(nil)
