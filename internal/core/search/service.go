package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/jinford/jobmatch/internal/core/embedding"
	"github.com/jinford/jobmatch/internal/core/index"
	"github.com/jinford/jobmatch/internal/core/jobs"
)

const (
	// DefaultTopK は近傍取得数のデフォルト上限
	DefaultTopK = 200
	// DefaultLimit は1ページあたりのデフォルト件数
	DefaultLimit = 10

	// distanceCeiling を超えるL2距離はスコア0に丸める。
	// 既存の保存済み結果とのスコア互換のため変更しないこと。
	distanceCeiling = 100.0
)

// Service は求人の類似検索パイプラインを提供する。クエリのEmbedding生成、
// キャッシュ済みインデックスでの近傍検索、スコア計算、レコード取得、
// ソート、ページネーションまでを担い、呼び出し元へエラーを返さない。
// 障害時は空の結果へ縮退させ、境界で一度だけログへ記録する。
type Service struct {
	cache    *index.Cache
	jobs     jobs.Repository
	embedder *embedding.Service
	logger   *slog.Logger
}

// NewService は新しい Service を作成する
func NewService(cache *index.Cache, jobsRepo jobs.Repository, embedder *embedding.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:    cache,
		jobs:     jobsRepo,
		embedder: embedder,
		logger:   logger,
	}
}

// SearchJobs はクエリテキストに類似する求人をページネーション付きで返す
func (s *Service) SearchJobs(ctx context.Context, queryText string, topK, page, limit int) *Page {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryVector := s.embedder.EmbedLong(ctx, queryText)

	s.cache.Load(ctx)
	if s.cache.HasIndex() && s.cache.MappingSize() == 0 {
		// インデックスはあるがマッピングが空の不整合は一度だけ再ロードする
		s.logger.Warn("位置マッピングが空のためインデックスを再ロードします")
		s.cache.Reset()
		s.cache.Load(ctx)
	}

	k := min(topK, s.cache.MappingSize())
	if k == 0 {
		s.logger.Warn("検索対象のベクトルが存在しません")
		return emptyPage(page)
	}

	distances, positions := s.cache.Search(ctx, queryVector, k)

	jobIDs := make([]string, 0, len(positions))
	scores := make(map[string]float64, len(positions))
	for i, pos := range positions {
		if pos < 0 {
			continue
		}
		jobID, ok := s.cache.JobID(pos)
		if !ok {
			continue
		}
		if _, seen := scores[jobID]; seen {
			// 近傍は距離昇順なので、最初に見たスコアが最良
			continue
		}
		jobIDs = append(jobIDs, jobID)
		scores[jobID] = similarityScore(float64(distances[i]))
	}

	if len(jobIDs) == 0 {
		return emptyPage(page)
	}

	records, err := s.jobs.GetByIDs(ctx, jobIDs)
	if err != nil {
		s.logger.Error("求人レコードの取得に失敗しました", "error", err, "ids", len(jobIDs))
		return emptyPage(page)
	}

	// インデックス構築後に削除された求人は結果から黙って落ちる
	matches := make([]*JobMatch, 0, len(records))
	for _, job := range records {
		matches = append(matches, &JobMatch{Job: job, Score: scores[job.ID]})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})

	return paginate(matches, page, limit)
}

// similarityScore はL2距離を[0,1]のスコアへ写像する。
// 距離0で1.0、距離100以上で0.0の線形クランプ。
func similarityScore(distance float64) float64 {
	if distance > distanceCeiling {
		distance = distanceCeiling
	}
	return 1.0 - distance/distanceCeiling
}

// paginate は全件数メタデータ付きでページを切り出す
func paginate(matches []*JobMatch, page, limit int) *Page {
	total := len(matches)
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	offset := (page - 1) * limit
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &Page{
		Results:    matches[offset:end],
		Total:      total,
		PageNumber: page,
		TotalPages: totalPages,
	}
}
