package index

// Engine はベクトルインデックスの構築と直列化を抽象化する。
// 実装はinfra層（FAISS）に置く。
type Engine interface {
	// BuildFlat は全探索のL2インデックスを構築する（学習不要）
	BuildFlat(vectors [][]float32) (Index, error)

	// BuildIVFPQ は転置ファイル+直積量子化インデックスを構築する。
	// 全ベクトルで学習した後に追加まで行った状態で返す。
	BuildIVFPQ(vectors [][]float32, params IVFPQParams) (Index, error)

	// Serialize はインデックスをバイト列へ直列化する
	Serialize(idx Index) ([]byte, error)

	// Deserialize はバイト列からインデックスを復元する
	Deserialize(data []byte) (Index, error)
}

// Index は構築済みベクトルインデックス。構築後は読み取り専用で、
// Searchは並行呼び出しに対して安全でなければならない。
type Index interface {
	// Search は単一クエリベクトルのk近傍を距離昇順で返す。
	// 距離とインデックス内位置のパラレル配列を返し、近傍が
	// k件に満たない場合、位置には負値が詰められる。
	Search(query []float32, k int) (distances []float32, positions []int64, err error)

	// Ntotal は格納ベクトル数を返す
	Ntotal() int64

	// Dimension はベクトル次元数を返す
	Dimension() int

	// Close はネイティブリソースを解放する
	Close()
}

// IVFPQParams はIVF+PQインデックスの構築パラメータ
type IVFPQParams struct {
	// NumClusters は転置ファイルのクラスタ数（nlist）
	NumClusters int
	// Subquantizers はサブ量子化器の数（m）。次元数を割り切る必要がある。
	Subquantizers int
	// BitsPerCode はサブベクトルあたりの量子化ビット数
	BitsPerCode int
	// NProbe は検索時に探索するクラスタ数
	NProbe int
}
