package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectTopologySmallCorpusUsesFlat(t *testing.T) {
	topo := SelectTopology(38, 768)
	assert.Equal(t, TopologyFlat, topo.Kind)
}

func TestSelectTopologyThresholdCorpusUsesIVFPQ(t *testing.T) {
	topo := SelectTopology(39, 768)
	assert.Equal(t, TopologyIVFPQ, topo.Kind)
	// 39/39 = 1 だが最低4クラスタに引き上げられる
	assert.Equal(t, 4, topo.IVFPQ.NumClusters)
	assert.Equal(t, 8, topo.IVFPQ.Subquantizers)
	assert.Equal(t, 8, topo.IVFPQ.BitsPerCode)
	assert.Equal(t, 4, topo.IVFPQ.NProbe)
}

func TestSelectTopologyClusterCountScalesWithCorpus(t *testing.T) {
	tests := []struct {
		name       string
		numVectors int
		want       int
	}{
		{"最低クラスタ数", 39, 4},
		{"39で除した値", 39 * 100, 100},
		{"上限256で打ち止め", 39 * 1000, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo := SelectTopology(tt.numVectors, 768)
			assert.Equal(t, tt.want, topo.IVFPQ.NumClusters)
		})
	}
}

func TestSelectTopologyNProbeCappedAtEight(t *testing.T) {
	topo := SelectTopology(39*100, 768)
	assert.Equal(t, 8, topo.IVFPQ.NProbe)
}

func TestSubquantizerCountDividesDimension(t *testing.T) {
	tests := []struct {
		dimension int
		want      int
	}{
		{768, 8},
		{384, 8},
		{100, 5}, // 8,7,6は100を割り切らない
		{770, 7},
		{97, 1}, // 素数次元は1まで落ちる
	}
	for _, tt := range tests {
		got := subquantizerCount(tt.dimension)
		assert.Equal(t, tt.want, got, "dimension=%d", tt.dimension)
		assert.Zero(t, tt.dimension%got)
	}
}
