package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/jobmatch/internal/core/embedding"
	"github.com/jinford/jobmatch/internal/core/jobs"
)

// backfillBatchSize はEmbedding書き込みのコミット単位。
// トランザクションを小さく保ち、途中クラッシュでも進捗が残る。
const backfillBatchSize = 100

// Builder はEmbeddingの事前計算とインデックスの構築・永続化を行う
// オフラインバッチ。リクエストパスでは実行しない。
type Builder struct {
	jobs     jobs.Repository
	embedder *embedding.Service
	engine   Engine
	store    Store

	indexName string
	logger    *slog.Logger
}

// NewBuilder は新しい Builder を作成する
func NewBuilder(jobsRepo jobs.Repository, embedder *embedding.Service, engine Engine, store Store, indexName string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		jobs:      jobsRepo,
		embedder:  embedder,
		engine:    engine,
		store:     store,
		indexName: indexName,
		logger:    logger,
	}
}

// Run はEmbeddingバックフィルとインデックス構築を順に実行する
func (b *Builder) Run(ctx context.Context) error {
	processed, err := b.BackfillEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("embedding backfill failed: %w", err)
	}
	b.logger.Info("Embeddingバックフィルが完了しました", "processed", processed)

	if err := b.BuildIndex(ctx); err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	return nil
}

// BackfillEmbeddings はdescriptionがありEmbedding未計算の求人すべてに
// ついてEmbeddingを計算して書き戻す。100件ごとにコミットし、1件の
// 失敗はログに残してスキップする。処理した件数を返す。
func (b *Builder) BackfillEmbeddings(ctx context.Context) (int, error) {
	if err := b.jobs.EnsureEmbeddingColumn(ctx); err != nil {
		return 0, fmt.Errorf("failed to ensure embedding column: %w", err)
	}

	pending, err := b.jobs.ListPendingEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	b.logger.Info("Embedding未計算の求人を取得しました", "count", len(pending))

	processed := 0
	batch := make([]jobs.JobVector, 0, backfillBatchSize)
	for i, job := range pending {
		vector := b.embedder.EmbedLong(ctx, job.Description)
		if isZeroVector(vector) {
			// Embedding生成の失敗はゼロベクトルへ縮退している
			b.logger.Warn("Embedding生成に失敗したためスキップします",
				"job_id", job.JobID, "position", i+1, "total", len(pending))
			continue
		}

		batch = append(batch, jobs.JobVector{JobID: job.JobID, Vector: vector})
		if len(batch) >= backfillBatchSize {
			if err := b.jobs.UpdateEmbeddings(ctx, batch); err != nil {
				return processed, fmt.Errorf("failed to commit embedding batch: %w", err)
			}
			processed += len(batch)
			batch = batch[:0]
			b.logger.Info("Embeddingバッチをコミットしました", "processed", processed)
		}
	}

	if len(batch) > 0 {
		if err := b.jobs.UpdateEmbeddings(ctx, batch); err != nil {
			return processed, fmt.Errorf("failed to commit final embedding batch: %w", err)
		}
		processed += len(batch)
	}

	return processed, nil
}

// BuildIndex はEmbedding計算済みの全求人からインデックスを構築し、
// blobと位置マッピングを永続化する。途中で失敗した場合、永続化済みの
// 状態は変更されない（バックフィル済みEmbeddingは冪等なので残る）。
func (b *Builder) BuildIndex(ctx context.Context) error {
	if err := b.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure index schema: %w", err)
	}

	vectors, err := b.jobs.ListEmbedded(ctx)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("no embeddings found in job postings")
	}

	dimension := len(vectors[0].Vector)
	jobIDs := make([]string, 0, len(vectors))
	matrix := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Vector) != dimension {
			b.logger.Warn("次元数が一致しないEmbeddingをスキップします",
				"job_id", v.JobID, "dimension", len(v.Vector), "expected", dimension)
			continue
		}
		jobIDs = append(jobIDs, v.JobID)
		matrix = append(matrix, v.Vector)
	}

	topology := SelectTopology(len(matrix), dimension)

	var idx Index
	switch topology.Kind {
	case TopologyFlat:
		b.logger.Info("全探索インデックスを構築します", "vectors", len(matrix), "dimension", dimension)
		idx, err = b.engine.BuildFlat(matrix)
	case TopologyIVFPQ:
		b.logger.Info("IVF+PQインデックスを構築します",
			"vectors", len(matrix),
			"dimension", dimension,
			"clusters", topology.IVFPQ.NumClusters,
			"subquantizers", topology.IVFPQ.Subquantizers,
			"nprobe", topology.IVFPQ.NProbe)
		idx, err = b.engine.BuildIVFPQ(matrix, topology.IVFPQ)
	}
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	defer idx.Close()

	data, err := b.engine.Serialize(idx)
	if err != nil {
		return fmt.Errorf("failed to serialize index: %w", err)
	}

	snapshot := &Snapshot{
		Name:       b.indexName,
		Data:       data,
		Dimension:  dimension,
		NumVectors: len(matrix),
	}
	if err := b.store.SaveSnapshot(ctx, snapshot, jobIDs); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	b.logger.Info("インデックスを永続化しました",
		"name", b.indexName, "vectors", len(matrix), "bytes", len(data))
	return nil
}

func isZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
