package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pingTimeout は起動時の接続確認にかける時間の上限
const pingTimeout = 5 * time.Second

// DB はデータベース接続プールを保持します
type DB struct {
	Pool *pgxpool.Pool
}

// ConnectionParams はデータベース接続パラメータ
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// connString はpgx向けのキーワード形式接続文字列を組み立てる。
// pg_stat_activity で接続元を識別できるよう application_name を付与する。
func (p ConnectionParams) connString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=jobmatch",
		p.Host,
		p.Port,
		p.User,
		p.Password,
		p.DBName,
		p.SSLMode,
	)
}

// New は新しいデータベース接続を作成します
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	pool, err := pgxpool.New(ctx, params.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 接続テスト
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close はデータベース接続を閉じます
func (db *DB) Close() {
	db.Pool.Close()
}
