package jobs

import "context"

// PendingJob はEmbedding未計算の求人
type PendingJob struct {
	JobID       string
	Description string
}

// Repository は求人テーブルへのアクセスを提供する
type Repository interface {
	// EnsureEmbeddingColumn はembeddingカラムが存在しない場合に追加する
	EnsureEmbeddingColumn(ctx context.Context) error

	// ListPendingEmbeddings はdescriptionがありembeddingが未計算の求人を返す
	ListPendingEmbeddings(ctx context.Context) ([]PendingJob, error)

	// UpdateEmbeddings は複数求人のembeddingを1トランザクションで書き込む
	UpdateEmbeddings(ctx context.Context, vectors []JobVector) error

	// ListEmbedded はembedding計算済みの全求人をフェッチ順で返す。
	// 格納エンコーディング（配列/文字列/バイナリ）の差異は吸収済み。
	ListEmbedded(ctx context.Context) ([]JobVector, error)

	// GetByIDs は指定IDの求人レコードを返す。存在しないIDは単に結果に含まれない。
	GetByIDs(ctx context.Context, ids []string) ([]*Job, error)

	// InsertIfAbsent は同一job_idまたはURLの行が無い場合のみ挿入し、
	// 挿入した件数を返す
	InsertIfAbsent(ctx context.Context, postings []*Job) (int, error)
}
