package faiss

import (
	"fmt"
	"os"

	gofaiss "github.com/blevesearch/go-faiss"

	"github.com/jinford/jobmatch/internal/core/index"
)

// Engine はFAISSによる index.Engine の実装。
// 直列化はFAISSネイティブのファイルフォーマットを使い、
// スコープ付き一時ファイル経由でバイト列と往復させる。
type Engine struct{}

// NewEngine は新しい Engine を作成する
func NewEngine() *Engine {
	return &Engine{}
}

var _ index.Engine = (*Engine)(nil)

// BuildFlat は全探索のL2インデックスを構築する
func (e *Engine) BuildFlat(vectors [][]float32) (index.Index, error) {
	flat, dim, err := flatten(vectors)
	if err != nil {
		return nil, err
	}

	idx, err := gofaiss.NewIndexFlatL2(dim)
	if err != nil {
		return nil, fmt.Errorf("failed to create flat index: %w", err)
	}
	if err := idx.Add(flat); err != nil {
		idx.Delete()
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}
	return &faissIndex{idx: idx, dim: dim}, nil
}

// BuildIVFPQ はIVF+PQインデックスを構築する。全ベクトルで学習してから
// 追加し、nprobeを設定した状態で返す。
func (e *Engine) BuildIVFPQ(vectors [][]float32, params index.IVFPQParams) (index.Index, error) {
	flat, dim, err := flatten(vectors)
	if err != nil {
		return nil, err
	}
	if dim%params.Subquantizers != 0 {
		return nil, fmt.Errorf("subquantizer count %d does not divide dimension %d", params.Subquantizers, dim)
	}

	description := fmt.Sprintf("IVF%d,PQ%dx%d", params.NumClusters, params.Subquantizers, params.BitsPerCode)
	idx, err := gofaiss.IndexFactory(dim, description, gofaiss.MetricL2)
	if err != nil {
		return nil, fmt.Errorf("failed to create index %q: %w", description, err)
	}

	if err := idx.Train(flat); err != nil {
		idx.Delete()
		return nil, fmt.Errorf("failed to train index: %w", err)
	}
	if err := idx.Add(flat); err != nil {
		idx.Delete()
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}
	if err := setNProbe(idx, params.NProbe); err != nil {
		idx.Delete()
		return nil, err
	}
	return &faissIndex{idx: idx, dim: dim}, nil
}

// Serialize はインデックスをFAISSネイティブ形式のバイト列へ直列化する
func (e *Engine) Serialize(idx index.Index) ([]byte, error) {
	fidx, ok := idx.(*faissIndex)
	if !ok {
		return nil, fmt.Errorf("unsupported index type %T", idx)
	}

	tmp, err := os.CreateTemp("", "faiss-index-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := gofaiss.WriteIndex(fidx.idx, path); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read serialized index: %w", err)
	}
	return data, nil
}

// Deserialize はバイト列からインデックスを復元する
func (e *Engine) Deserialize(data []byte) (index.Index, error) {
	tmp, err := os.CreateTemp("", "faiss-index-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	idx, err := gofaiss.ReadIndex(path, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return &faissIndex{idx: idx, dim: idx.D()}, nil
}

func setNProbe(idx gofaiss.Index, nprobe int) error {
	ps, err := gofaiss.NewParameterSpace()
	if err != nil {
		return fmt.Errorf("failed to create parameter space: %w", err)
	}
	defer ps.Delete()

	if err := ps.SetIndexParameter(idx, "nprobe", float64(nprobe)); err != nil {
		return fmt.Errorf("failed to set nprobe: %w", err)
	}
	return nil
}

// flatten は二次元ベクトル群をFAISSが要求する行優先の一次元配列へ詰める
func flatten(vectors [][]float32) ([]float32, int, error) {
	if len(vectors) == 0 {
		return nil, 0, fmt.Errorf("no vectors to index")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, 0, fmt.Errorf("zero-dimension vectors")
	}

	flat := make([]float32, 0, len(vectors)*dim)
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, 0, fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), dim)
		}
		flat = append(flat, vec...)
	}
	return flat, dim, nil
}

// faissIndex は index.Index の実装。構築後は読み取り専用で、
// FAISSの検索は読み取り専用の並行呼び出しに対して安全。
type faissIndex struct {
	idx gofaiss.Index
	dim int
}

var _ index.Index = (*faissIndex)(nil)

func (f *faissIndex) Search(query []float32, k int) ([]float32, []int64, error) {
	if len(query) != f.dim {
		return nil, nil, fmt.Errorf("query dimension %d, want %d", len(query), f.dim)
	}
	distances, positions, err := f.idx.Search(query, int64(k))
	if err != nil {
		return nil, nil, fmt.Errorf("faiss search failed: %w", err)
	}
	return distances, positions, nil
}

func (f *faissIndex) Ntotal() int64 {
	return f.idx.Ntotal()
}

func (f *faissIndex) Dimension() int {
	return f.dim
}

func (f *faissIndex) Close() {
	f.idx.Delete()
}
