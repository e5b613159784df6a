package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/jobmatch/internal/core/index"
	"github.com/jinford/jobmatch/pkg/db"
)

// IndexRepository は index.Store を実装する PostgreSQL リポジトリ
type IndexRepository struct {
	pool *pgxpool.Pool
}

// NewIndexRepository は新しい IndexRepository を作成する
func NewIndexRepository(pool *pgxpool.Pool) *IndexRepository {
	return &IndexRepository{pool: pool}
}

var _ index.Store = (*IndexRepository)(nil)

// EnsureSchema はインデックス永続化用テーブルを作成する
func (r *IndexRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS faiss_indices (
			id SERIAL PRIMARY KEY,
			index_name TEXT UNIQUE NOT NULL,
			index_data BYTEA NOT NULL,
			dimension INTEGER NOT NULL,
			num_vectors INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create faiss_indices table: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS faiss_job_mapping (
			index_name TEXT NOT NULL,
			vector_position BIGINT NOT NULL,
			job_id TEXT NOT NULL,
			PRIMARY KEY (index_name, vector_position)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create faiss_job_mapping table: %w", err)
	}
	return nil
}

// GetSnapshot は名前で永続化済みインデックスを取得する
func (r *IndexRepository) GetSnapshot(ctx context.Context, name string) (*index.Snapshot, error) {
	snapshot := &index.Snapshot{Name: name}
	err := r.pool.QueryRow(ctx, `
		SELECT index_data, dimension, num_vectors, created_at
		FROM faiss_indices
		WHERE index_name = $1`, name).
		Scan(&snapshot.Data, &snapshot.Dimension, &snapshot.NumVectors, &snapshot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, index.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index snapshot: %w", err)
	}
	return snapshot, nil
}

// SaveSnapshot はインデックスとIDマッピングを1トランザクションで置き換える
func (r *IndexRepository) SaveSnapshot(ctx context.Context, snapshot *index.Snapshot, jobIDs []string) error {
	_, err := db.Transact(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		if _, err := tx.Exec(ctx,
			`DELETE FROM faiss_job_mapping WHERE index_name = $1`, snapshot.Name); err != nil {
			return struct{}{}, fmt.Errorf("failed to clear mapping: %w", err)
		}

		mappingRows := make([][]any, 0, len(jobIDs))
		for pos, jobID := range jobIDs {
			mappingRows = append(mappingRows, []any{snapshot.Name, int64(pos), jobID})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"faiss_job_mapping"},
			[]string{"index_name", "vector_position", "job_id"},
			pgx.CopyFromRows(mappingRows))
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to insert mapping: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO faiss_indices (index_name, index_data, dimension, num_vectors)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (index_name) DO UPDATE SET
				index_data = EXCLUDED.index_data,
				dimension = EXCLUDED.dimension,
				num_vectors = EXCLUDED.num_vectors,
				created_at = CURRENT_TIMESTAMP`,
			snapshot.Name, snapshot.Data, snapshot.Dimension, snapshot.NumVectors)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to save index snapshot: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// ListMapping はベクトル位置順にIDマッピングを返す
func (r *IndexRepository) ListMapping(ctx context.Context, name string) ([]index.MappingEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT vector_position, job_id
		FROM faiss_job_mapping
		WHERE index_name = $1
		ORDER BY vector_position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list index mapping: %w", err)
	}
	defer rows.Close()

	var entries []index.MappingEntry
	for rows.Next() {
		var e index.MappingEntry
		if err := rows.Scan(&e.Position, &e.JobID); err != nil {
			return nil, fmt.Errorf("failed to scan mapping entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mapping entries: %w", err)
	}
	return entries, nil
}
