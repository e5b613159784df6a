package index

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jinford/jobmatch/internal/core/jobs"
)

// Cache はデシリアライズ済みインデックスと位置マッピングをプロセス内で
// 保持するキャッシュ。初回利用時にミューテックス保護下で遅延ロードし、
// 並行する最初の呼び出し群のうち1つだけがロードを実行する。ロード後の
// インデックスとマッピングは読み取り専用として扱うため、検索に追加の
// ロックは不要。プロセスを通じて1インスタンスをDIで共有する。
type Cache struct {
	store  Store
	engine Engine
	jobs   jobs.Repository

	indexName string
	logger    *slog.Logger

	mu      sync.Mutex
	loaded  bool
	handle  *indexHandle
	mapping map[int64]string
}

// indexHandle は参照カウント付きのロード済みインデックス。検索はロック
// 外で実行されるため、Resetされた時点で検索中の読み手が残っている場合、
// ネイティブリソースの解放は最後の読み手が抜けるまで遅延させる。
type indexHandle struct {
	idx Index

	mu      sync.Mutex
	refs    int
	retired bool
}

func (h *indexHandle) acquire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs++
}

func (h *indexHandle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.retired && h.refs == 0 {
		h.idx.Close()
	}
}

// retire は新規の読み手が現れない状態（Cacheから切り離された後）で
// 呼ばれる。読み手が残っていなければ即座に解放する。
func (h *indexHandle) retire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retired = true
	if h.refs == 0 {
		h.idx.Close()
	}
}

// NewCache は新しい Cache を作成する
func NewCache(store Store, engine Engine, jobsRepo jobs.Repository, indexName string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:     store,
		engine:    engine,
		jobs:      jobsRepo,
		indexName: indexName,
		logger:    logger,
	}
}

// Load は永続化済みインデックスをロードする。ロード済みなら何もしない。
// blobが存在しない、またはロードに失敗した場合は生Embeddingからの
// フォールバック構築へ切り替える。エラーは伝播させずログへ記録する。
func (c *Cache) Load(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.loadLocked(ctx)
}

func (c *Cache) loadLocked(ctx context.Context) {
	c.logger.Info("永続化済みインデックスをロードします", "name", c.indexName)

	snapshot, err := c.store.GetSnapshot(ctx, c.indexName)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			c.logger.Info("永続化済みインデックスが見つからないためフォールバック構築します", "name", c.indexName)
		} else {
			c.logger.Error("インデックスの取得に失敗したためフォールバック構築します", "error", err)
		}
		c.buildFallbackLocked(ctx)
		return
	}

	idx, err := c.engine.Deserialize(snapshot.Data)
	if err != nil {
		c.logger.Error("インデックスのデシリアライズに失敗したためフォールバック構築します", "error", err)
		c.buildFallbackLocked(ctx)
		return
	}

	entries, err := c.store.ListMapping(ctx, c.indexName)
	if err != nil {
		c.logger.Error("位置マッピングの取得に失敗したためフォールバック構築します", "error", err)
		idx.Close()
		c.buildFallbackLocked(ctx)
		return
	}

	mapping := make(map[int64]string, len(entries))
	for _, e := range entries {
		jobID := strings.TrimSpace(e.JobID)
		if e.Position < 0 || jobID == "" {
			c.logger.Warn("不正なマッピング行をスキップします", "position", e.Position, "job_id", e.JobID)
			continue
		}
		mapping[e.Position] = jobID
	}

	c.handle = &indexHandle{idx: idx}
	c.mapping = mapping
	c.loaded = true
	c.logger.Info("インデックスキャッシュの準備が完了しました",
		"vectors", idx.Ntotal(), "mappings", len(mapping))
}

// buildFallbackLocked は求人テーブルの生EmbeddingからFlat L2インデックスを
// オンザフライで構築する。正確さと単純さを優先し量子化は行わない。
// 失敗した場合はロード済みにせず、次回呼び出しで再試行される。
func (c *Cache) buildFallbackLocked(ctx context.Context) {
	vectors, err := c.jobs.ListEmbedded(ctx)
	if err != nil {
		c.logger.Error("フォールバック構築用のEmbedding取得に失敗しました", "error", err)
		return
	}
	if len(vectors) == 0 {
		c.logger.Warn("Embeddingが存在しないためフォールバック構築できません")
		return
	}

	dimension := len(vectors[0].Vector)
	matrix := make([][]float32, 0, len(vectors))
	mapping := make(map[int64]string, len(vectors))
	for _, v := range vectors {
		if len(v.Vector) != dimension {
			c.logger.Warn("次元数が一致しないEmbeddingをスキップします", "job_id", v.JobID)
			continue
		}
		mapping[int64(len(matrix))] = v.JobID
		matrix = append(matrix, v.Vector)
	}

	idx, err := c.engine.BuildFlat(matrix)
	if err != nil {
		c.logger.Error("フォールバックインデックスの構築に失敗しました", "error", err)
		return
	}

	c.handle = &indexHandle{idx: idx}
	c.mapping = mapping
	c.loaded = true
	c.logger.Info("フォールバックインデックスを構築しました", "vectors", len(matrix))
}

// Search はクエリベクトルのk近傍を検索する。未ロードであれば先にロード
// する。ロード後もインデックスが無い、またはマッピングが空の場合は
// エラーではなく空の結果対を返す。検索本体はロック外で実行されるが、
// 参照の獲得によりResetと競合してもインデックスは解放されない。
func (c *Cache) Search(ctx context.Context, query []float32, k int) (distances []float32, positions []int64) {
	c.mu.Lock()
	if !c.loaded {
		c.loadLocked(ctx)
	}
	h := c.handle
	if h != nil {
		h.acquire()
	}
	mappingSize := len(c.mapping)
	c.mu.Unlock()

	if h == nil {
		return nil, nil
	}
	defer h.release()

	if mappingSize == 0 {
		return nil, nil
	}

	distances, positions, err := h.idx.Search(query, k)
	if err != nil {
		c.logger.Error("近傍検索に失敗しました", "error", err)
		return nil, nil
	}
	return distances, positions
}

// JobID は位置に対応する求人IDを返す
func (c *Cache) JobID(position int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	jobID, ok := c.mapping[position]
	return jobID, ok
}

// MappingSize は位置マッピングの件数を返す
func (c *Cache) MappingSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mapping)
}

// HasIndex はインデックスがロード済みかを返す
func (c *Cache) HasIndex() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// Reset はキャッシュを未ロード状態へ戻す。次回利用時に再ロードされる。
// 切り離した旧インデックスは検索中の読み手がいなくなってから解放する。
func (c *Cache) Reset() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mapping = nil
	c.loaded = false
	c.mu.Unlock()

	if h != nil {
		h.retire()
	}
}
