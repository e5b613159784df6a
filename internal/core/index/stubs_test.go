package index

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"github.com/jinford/jobmatch/internal/core/jobs"
)

// stubIndex は全探索のL2距離計算でIndexを模倣する
type stubIndex struct {
	vectors [][]float32
	closed  bool
}

func (s *stubIndex) Search(query []float32, k int) ([]float32, []int64, error) {
	type scored struct {
		pos  int64
		dist float32
	}
	scoreds := make([]scored, 0, len(s.vectors))
	for i, vec := range s.vectors {
		var sum float64
		for j := range vec {
			d := float64(vec[j]) - float64(query[j])
			sum += d * d
		}
		scoreds = append(scoreds, scored{pos: int64(i), dist: float32(math.Sqrt(sum))})
	}
	sort.Slice(scoreds, func(a, b int) bool { return scoreds[a].dist < scoreds[b].dist })

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

func (s *stubIndex) Ntotal() int64 { return int64(len(s.vectors)) }
func (s *stubIndex) Dimension() int {
	if len(s.vectors) == 0 {
		return 0
	}
	return len(s.vectors[0])
}
func (s *stubIndex) Close() { s.closed = true }

// stubEngine は呼び出しを記録するEngineスタブ
type stubEngine struct {
	flatCalls        atomic.Int64
	ivfpqCalls       atomic.Int64
	deserializeCalls atomic.Int64
	lastIVFPQParams  IVFPQParams
	serialized       []byte
}

func (e *stubEngine) BuildFlat(vectors [][]float32) (Index, error) {
	e.flatCalls.Add(1)
	return &stubIndex{vectors: vectors}, nil
}

func (e *stubEngine) BuildIVFPQ(vectors [][]float32, params IVFPQParams) (Index, error) {
	e.ivfpqCalls.Add(1)
	e.lastIVFPQParams = params
	return &stubIndex{vectors: vectors}, nil
}

func (e *stubEngine) Serialize(idx Index) ([]byte, error) {
	if e.serialized == nil {
		e.serialized = []byte("serialized-index")
	}
	return e.serialized, nil
}

func (e *stubEngine) Deserialize(data []byte) (Index, error) {
	e.deserializeCalls.Add(1)
	return &stubIndex{vectors: [][]float32{{0, 0}, {1, 1}}}, nil
}

// stubStore はメモリ上のStoreスタブ
type stubStore struct {
	snapshot    *Snapshot
	entries     []MappingEntry
	getErr      error
	listErr     error
	saveErr     error
	savedIDs    []string
	getCalls    atomic.Int64
	ensureCalls int
}

func (s *stubStore) EnsureSchema(ctx context.Context) error {
	s.ensureCalls++
	return nil
}

func (s *stubStore) GetSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	s.getCalls.Add(1)
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.snapshot == nil {
		return nil, ErrSnapshotNotFound
	}
	return s.snapshot, nil
}

func (s *stubStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot, jobIDs []string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshot = snapshot
	s.savedIDs = append([]string(nil), jobIDs...)
	s.entries = make([]MappingEntry, 0, len(jobIDs))
	for i, id := range jobIDs {
		s.entries = append(s.entries, MappingEntry{Position: int64(i), JobID: id})
	}
	return nil
}

func (s *stubStore) ListMapping(ctx context.Context, name string) ([]MappingEntry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.entries, nil
}

// stubJobsRepo はメモリ上のjobs.Repositoryスタブ
type stubJobsRepo struct {
	pending        []jobs.PendingJob
	embedded       []jobs.JobVector
	records        map[string]*jobs.Job
	updatedBatches [][]jobs.JobVector
	listErr        error
}

func (r *stubJobsRepo) EnsureEmbeddingColumn(ctx context.Context) error { return nil }

func (r *stubJobsRepo) ListPendingEmbeddings(ctx context.Context) ([]jobs.PendingJob, error) {
	return r.pending, nil
}

func (r *stubJobsRepo) UpdateEmbeddings(ctx context.Context, vectors []jobs.JobVector) error {
	batch := append([]jobs.JobVector(nil), vectors...)
	r.updatedBatches = append(r.updatedBatches, batch)
	return nil
}

func (r *stubJobsRepo) ListEmbedded(ctx context.Context) ([]jobs.JobVector, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.embedded, nil
}

func (r *stubJobsRepo) GetByIDs(ctx context.Context, ids []string) ([]*jobs.Job, error) {
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
