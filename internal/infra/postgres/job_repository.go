package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/jobmatch/internal/core/jobs"
	"github.com/jinford/jobmatch/pkg/db"
)

// JobRepository は jobs.Repository を実装する PostgreSQL リポジトリ
type JobRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewJobRepository は新しい JobRepository を作成する
func NewJobRepository(pool *pgxpool.Pool, logger *slog.Logger) *JobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepository{pool: pool, logger: logger}
}

var _ jobs.Repository = (*JobRepository)(nil)

// EnsureEmbeddingColumn はembeddingカラムが存在しない場合に追加する
func (r *JobRepository) EnsureEmbeddingColumn(ctx context.Context) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'job_postings' AND column_name = 'embedding'
		)`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check embedding column: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := r.pool.Exec(ctx, `ALTER TABLE job_postings ADD COLUMN embedding float4[]`); err != nil {
		return fmt.Errorf("failed to add embedding column: %w", err)
	}
	return nil
}

// ListPendingEmbeddings はdescriptionがありembeddingが未計算の求人を返す
func (r *JobRepository) ListPendingEmbeddings(ctx context.Context) ([]jobs.PendingJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT job_id::text, description
		FROM job_postings
		WHERE description IS NOT NULL AND embedding IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	defer rows.Close()

	var pending []jobs.PendingJob
	for rows.Next() {
		var p jobs.PendingJob
		if err := rows.Scan(&p.JobID, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan pending job: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending jobs: %w", err)
	}
	return pending, nil
}

// UpdateEmbeddings は複数求人のembeddingを1トランザクションで書き込む
func (r *JobRepository) UpdateEmbeddings(ctx context.Context, vectors []jobs.JobVector) error {
	if len(vectors) == 0 {
		return nil
	}

	_, err := db.Transact(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		batch := &pgx.Batch{}
		for _, v := range vectors {
			batch.Queue(`UPDATE job_postings SET embedding = $1 WHERE job_id::text = $2`, v.Vector, v.JobID)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for range vectors {
			if _, err := results.Exec(); err != nil {
				return struct{}{}, fmt.Errorf("failed to update embedding: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// ListEmbedded はembedding計算済みの全求人をフェッチ順で返す。
// 解釈できないEmbeddingはログに残してスキップする。
func (r *JobRepository) ListEmbedded(ctx context.Context) ([]jobs.JobVector, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT job_id::text, embedding
		FROM job_postings
		WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded jobs: %w", err)
	}
	defer rows.Close()

	var vectors []jobs.JobVector
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		jobID, ok := values[0].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected job_id type %T", values[0])
		}

		vector, err := decodeEmbedding(values[1])
		if err != nil {
			r.logger.Warn("Embeddingを解釈できないためスキップします", "job_id", jobID, "error", err)
			continue
		}
		vectors = append(vectors, jobs.JobVector{JobID: jobID, Vector: vector})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embedded jobs: %w", err)
	}
	return vectors, nil
}

// GetByIDs は指定IDの求人レコードを返す。存在しないIDは結果に含まれない。
func (r *JobRepository) GetByIDs(ctx context.Context, ids []string) ([]*jobs.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT
			job_id::text,
			COALESCE(job_title, ''),
			COALESCE(company_name, ''),
			COALESCE(description, ''),
			COALESCE(location_short, ''),
			COALESCE(location_long, ''),
			COALESCE(job_category, ''),
			COALESCE(salary_range, ''),
			COALESCE(url, ''),
			date_posted
		FROM job_postings
		WHERE job_id::text = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs by ids: %w", err)
	}
	defer rows.Close()

	var result []*jobs.Job
	for rows.Next() {
		job := &jobs.Job{}
		if err := rows.Scan(
			&job.ID,
			&job.Title,
			&job.Company,
			&job.Description,
			&job.LocationShort,
			&job.LocationLong,
			&job.Category,
			&job.SalaryRange,
			&job.URL,
			&job.DatePosted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		normalizeJob(job)
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return result, nil
}

// InsertIfAbsent は同一job_idまたはURLの行が無い場合のみ挿入する
func (r *JobRepository) InsertIfAbsent(ctx context.Context, postings []*jobs.Job) (int, error) {
	if len(postings) == 0 {
		return 0, nil
	}

	return db.Transact(ctx, r.pool, func(tx pgx.Tx) (int, error) {
		inserted := 0
		for _, job := range postings {
			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM job_postings WHERE job_id::text = $1 OR url = $2)`,
				job.ID, job.URL).Scan(&exists)
			if err != nil {
				return inserted, fmt.Errorf("failed to check existing job: %w", err)
			}
			if exists {
				continue
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO job_postings
					(job_id, job_title, company_name, description,
					 location_short, location_long, job_category, salary_range, url, date_posted)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				job.ID, job.Title, job.Company, job.Description,
				job.LocationShort, job.LocationLong, job.Category, job.SalaryRange, job.URL, job.DatePosted)
			if err != nil {
				return inserted, fmt.Errorf("failed to insert job %s: %w", job.ID, err)
			}
			inserted++
		}
		return inserted, nil
	})
}

// normalizeJob は欠損した任意項目を表示用デフォルトへ正規化する
func normalizeJob(job *jobs.Job) {
	if job.Title == "" {
		job.Title = jobs.NotSpecified
	}
	if job.Company == "" {
		job.Company = jobs.NotSpecified
	}
	if job.Category == "" {
		job.Category = jobs.NotSpecified
	}
	if job.SalaryRange == "" {
		job.SalaryRange = jobs.NotSpecified
	}
}
