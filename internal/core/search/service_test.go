package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/jobmatch/internal/core/embedding"
	"github.com/jinford/jobmatch/internal/core/index"
	"github.com/jinford/jobmatch/internal/core/jobs"
)

// --- スタブ群 ---

// stubModel はクエリテキストに関わらず固定ベクトルを返す
type stubModel struct {
	dim    int
	vector []float32
}

func (m *stubModel) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.vector, nil
}

func (m *stubModel) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = m.vector
	}
	return vectors, nil
}

func (m *stubModel) Dimension() int    { return m.dim }
func (m *stubModel) MaxBatchSize() int { return 100 }

// bruteIndex はL2距離の全探索でindex.Indexを実装する
type bruteIndex struct {
	vectors [][]float32
}

func (b *bruteIndex) Search(query []float32, k int) ([]float32, []int64, error) {
	type scored struct {
		pos  int64
		dist float32
	}
	scoreds := make([]scored, 0, len(b.vectors))
	for i, vec := range b.vectors {
		var sum float64
		for j := range vec {
			d := float64(vec[j]) - float64(query[j])
			sum += d * d
		}
		scoreds = append(scoreds, scored{pos: int64(i), dist: float32(math.Sqrt(sum))})
	}
	sort.Slice(scoreds, func(a, c int) bool { return scoreds[a].dist < scoreds[c].dist })

	distances := make([]float32, k)
	positions := make([]int64, k)
	for i := 0; i < k; i++ {
		if i < len(scoreds) {
			distances[i] = scoreds[i].dist
			positions[i] = scoreds[i].pos
		} else {
			positions[i] = -1
		}
	}
	return distances, positions, nil
}

func (b *bruteIndex) Ntotal() int64 { return int64(len(b.vectors)) }
func (b *bruteIndex) Dimension() int {
	if len(b.vectors) == 0 {
		return 0
	}
	return len(b.vectors[0])
}
func (b *bruteIndex) Close() {}

// bruteEngine はフォールバック構築でbruteIndexを返すEngine
type bruteEngine struct{}

func (e *bruteEngine) BuildFlat(vectors [][]float32) (index.Index, error) {
	return &bruteIndex{vectors: vectors}, nil
}

func (e *bruteEngine) BuildIVFPQ(vectors [][]float32, params index.IVFPQParams) (index.Index, error) {
	return &bruteIndex{vectors: vectors}, nil
}

func (e *bruteEngine) Serialize(idx index.Index) ([]byte, error) { return []byte("x"), nil }

func (e *bruteEngine) Deserialize(data []byte) (index.Index, error) {
	return nil, fmt.Errorf("not supported in tests")
}

// emptyStore は常にスナップショット未検出を返す
type emptyStore struct{}

func (s *emptyStore) EnsureSchema(ctx context.Context) error { return nil }
func (s *emptyStore) GetSnapshot(ctx context.Context, name string) (*index.Snapshot, error) {
	return nil, index.ErrSnapshotNotFound
}
func (s *emptyStore) SaveSnapshot(ctx context.Context, snapshot *index.Snapshot, jobIDs []string) error {
	return nil
}
func (s *emptyStore) ListMapping(ctx context.Context, name string) ([]index.MappingEntry, error) {
	return nil, nil
}

// stubJobsRepo はメモリ上のjobs.Repository
type stubJobsRepo struct {
	embedded []jobs.JobVector
	records  map[string]*jobs.Job
	getErr   error
}

func (r *stubJobsRepo) EnsureEmbeddingColumn(ctx context.Context) error { return nil }
func (r *stubJobsRepo) ListPendingEmbeddings(ctx context.Context) ([]jobs.PendingJob, error) {
	return nil, nil
}
func (r *stubJobsRepo) UpdateEmbeddings(ctx context.Context, vectors []jobs.JobVector) error {
	return nil
}
func (r *stubJobsRepo) ListEmbedded(ctx context.Context) ([]jobs.JobVector, error) {
	return r.embedded, nil
}
func (r *stubJobsRepo) GetByIDs(ctx context.Context, ids []string) ([]*jobs.Job, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	result := make([]*jobs.Job, 0, len(ids))
	for _, id := range ids {
		if job, ok := r.records[id]; ok {
			result = append(result, job)
		}
	}
	return result, nil
}
func (r *stubJobsRepo) InsertIfAbsent(ctx context.Context, postings []*jobs.Job) (int, error) {
	return 0, nil
}

// newTestService はフォールバック構築経由でインデックスを組み立てたServiceを返す。
// 各求人ベクトルは(距離, 0)に置き、原点クエリからのL2距離を直接制御する。
func newTestService(distances map[string]float64) (*Service, *stubJobsRepo) {
	ids := make([]string, 0, len(distances))
	for id := range distances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	repo := &stubJobsRepo{records: map[string]*jobs.Job{}}
	for _, id := range ids {
		repo.embedded = append(repo.embedded, jobs.JobVector{
			JobID:  id,
			Vector: []float32{float32(distances[id]), 0},
		})
		repo.records[id] = &jobs.Job{ID: id, Title: "Job " + id, Company: "Acme", Description: "desc"}
	}

	cache := index.NewCache(&emptyStore{}, &bruteEngine{}, repo, "test_index", nil)
	embedder := embedding.NewService(&stubModel{dim: 2, vector: []float32{0, 0}})
	return NewService(cache, repo, embedder, nil), repo
}

// --- テスト ---

func TestSearchJobsEmptyCorpusReturnsExplicitEmptyResult(t *testing.T) {
	repo := &stubJobsRepo{}
	cache := index.NewCache(&emptyStore{}, &bruteEngine{}, repo, "test_index", nil)
	embedder := embedding.NewService(&stubModel{dim: 2, vector: []float32{0, 0}})
	svc := NewService(cache, repo, embedder, nil)

	page := svc.SearchJobs(context.Background(), "anything", 10, 1, 10)
	require.NotNil(t, page)
	assert.Empty(t, page.Results)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 1, page.PageNumber)
	assert.Equal(t, 0, page.TotalPages)
}

func TestSearchJobsScoreMapping(t *testing.T) {
	svc, _ := newTestService(map[string]float64{
		"exact": 0,
		"near":  25,
		"far":   150,
	})

	page := svc.SearchJobs(context.Background(), "query", 10, 1, 10)
	require.Len(t, page.Results, 3)

	byID := make(map[string]float64)
	for _, m := range page.Results {
		byID[m.Job.ID] = m.Score
	}
	assert.InDelta(t, 1.0, byID["exact"], 1e-9)
	assert.InDelta(t, 0.75, byID["near"], 1e-9)
	assert.InDelta(t, 0.0, byID["far"], 1e-9)
}

func TestSearchJobsSortsByScoreDescending(t *testing.T) {
	svc, _ := newTestService(map[string]float64{
		"a": 50,
		"b": 10,
		"c": 30,
	})

	page := svc.SearchJobs(context.Background(), "query", 10, 1, 10)
	require.Len(t, page.Results, 3)
	assert.Equal(t, "b", page.Results[0].Job.ID)
	assert.Equal(t, "c", page.Results[1].Job.ID)
	assert.Equal(t, "a", page.Results[2].Job.ID)
	assert.True(t, sort.SliceIsSorted(page.Results, func(i, j int) bool {
		return page.Results[i].Score > page.Results[j].Score
	}))
}

func TestSearchJobsPaginationLaw(t *testing.T) {
	distances := make(map[string]float64, 23)
	for i := 0; i < 23; i++ {
		distances[fmt.Sprintf("job-%02d", i)] = float64(i)
	}
	svc, _ := newTestService(distances)

	const limit = 5
	page1 := svc.SearchJobs(context.Background(), "query", 100, 1, limit)
	assert.Equal(t, 23, page1.Total)
	assert.Equal(t, 5, page1.TotalPages) // ceil(23/5)

	seen := make([]string, 0, 23)
	for p := 1; p <= page1.TotalPages; p++ {
		page := svc.SearchJobs(context.Background(), "query", 100, p, limit)
		assert.Equal(t, p, page.PageNumber)
		for _, m := range page.Results {
			seen = append(seen, m.Job.ID)
		}
	}
	// 全ページの連結はソート済み全結果を各1回ずつ再現する
	require.Len(t, seen, 23)
	unique := make(map[string]bool)
	for _, id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 23)
}

func TestSearchJobsKCappedByMappingSize(t *testing.T) {
	svc, _ := newTestService(map[string]float64{"a": 1, "b": 2})

	page := svc.SearchJobs(context.Background(), "query", 1000, 1, 10)
	assert.Len(t, page.Results, 2)
}

func TestSearchJobsDropsDeletedJobsSilently(t *testing.T) {
	svc, repo := newTestService(map[string]float64{"kept": 1, "deleted": 2})
	delete(repo.records, "deleted")

	page := svc.SearchJobs(context.Background(), "query", 10, 1, 10)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "kept", page.Results[0].Job.ID)
	assert.Equal(t, 1, page.Total)
}

func TestSearchJobsDegradesToEmptyOnRecordFetchFailure(t *testing.T) {
	svc, repo := newTestService(map[string]float64{"a": 1})
	repo.getErr = fmt.Errorf("connection reset")

	page := svc.SearchJobs(context.Background(), "query", 10, 1, 10)
	assert.Empty(t, page.Results)
	assert.Equal(t, 0, page.TotalPages)
}

func TestSearchJobsNormalizesPageAndLimit(t *testing.T) {
	svc, _ := newTestService(map[string]float64{"a": 1})

	page := svc.SearchJobs(context.Background(), "query", 10, 0, 0)
	assert.Equal(t, 1, page.PageNumber)
	assert.Len(t, page.Results, 1)
}

func TestSearchJobsPageBeyondEndIsEmptyButKeepsMetadata(t *testing.T) {
	svc, _ := newTestService(map[string]float64{"a": 1, "b": 2, "c": 3})

	page := svc.SearchJobs(context.Background(), "query", 10, 9, 2)
	assert.Empty(t, page.Results)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 9, page.PageNumber)
}

func TestSimilarityScoreClamp(t *testing.T) {
	assert.InDelta(t, 1.0, similarityScore(0), 1e-9)
	assert.InDelta(t, 0.75, similarityScore(25), 1e-9)
	assert.InDelta(t, 0.0, similarityScore(100), 1e-9)
	assert.InDelta(t, 0.0, similarityScore(12345), 1e-9)
}
