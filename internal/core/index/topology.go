package index

// FlatThreshold はこれ未満のベクトル数で全探索インデックスを選ぶ閾値。
// IVFの学習はクラスタあたり39点以上を要求するため、それを下回る
// コーパスでは量子化の意味がない。
const FlatThreshold = 39

const (
	minClusters        = 4
	maxClusters        = 256
	defaultQuantizers  = 8
	defaultBitsPerCode = 8
	maxNProbe          = 8
)

// TopologyKind はインデックスの構造種別
type TopologyKind int

const (
	// TopologyFlat は全探索のL2インデックス
	TopologyFlat TopologyKind = iota
	// TopologyIVFPQ は転置ファイル+直積量子化インデックス
	TopologyIVFPQ
)

// Topology はコーパス規模から決定されたインデックス構成
type Topology struct {
	Kind  TopologyKind
	IVFPQ IVFPQParams
}

// SelectTopology はベクトル数と次元数からインデックス構成を決定する。
// FlatThreshold未満は全探索、それ以上はIVF+PQを選ぶ。
// クラスタ数は clamp(numVectors/39, 4, 256)、サブ量子化器数は8から
// 次元数を割り切るまで減らし、nprobeは min(クラスタ数, 8) に固定する。
func SelectTopology(numVectors, dimension int) Topology {
	if numVectors < FlatThreshold {
		return Topology{Kind: TopologyFlat}
	}

	numClusters := clusterCount(numVectors)
	return Topology{
		Kind: TopologyIVFPQ,
		IVFPQ: IVFPQParams{
			NumClusters:   numClusters,
			Subquantizers: subquantizerCount(dimension),
			BitsPerCode:   defaultBitsPerCode,
			NProbe:        min(numClusters, maxNProbe),
		},
	}
}

func clusterCount(numVectors int) int {
	n := numVectors / FlatThreshold
	if n < minClusters {
		return minClusters
	}
	if n > maxClusters {
		return maxClusters
	}
	return n
}

// subquantizerCount は次元数を割り切る最大のm (<=8) を返す
func subquantizerCount(dimension int) int {
	m := defaultQuantizers
	for dimension%m != 0 && m > 1 {
		m--
	}
	return m
}
