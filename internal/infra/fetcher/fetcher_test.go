package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/jobmatch/internal/core/jobs"
)

type stubRepo struct {
	stored []*jobs.Job
}

func (s *stubRepo) EnsureEmbeddingColumn(ctx context.Context) error { return nil }

func (s *stubRepo) ListPendingEmbeddings(ctx context.Context) ([]jobs.PendingJob, error) {
	return nil, nil
}

func (s *stubRepo) UpdateEmbeddings(ctx context.Context, vectors []jobs.JobVector) error {
	return nil
}

func (s *stubRepo) ListEmbedded(ctx context.Context) ([]jobs.JobVector, error) {
	return nil, nil
}

func (s *stubRepo) GetByIDs(ctx context.Context, ids []string) ([]*jobs.Job, error) {
	return nil, nil
}

func (s *stubRepo) InsertIfAbsent(ctx context.Context, postings []*jobs.Job) (int, error) {
	inserted := 0
	for _, job := range postings {
		duplicate := false
		for _, existing := range s.stored {
			if existing.ID == job.ID {
				duplicate = true
				break
			}
		}
		if !duplicate {
			s.stored = append(s.stored, job)
			inserted++
		}
	}
	return inserted, nil
}

type stubSource struct {
	name     string
	postings map[string][]*jobs.Job
	err      error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, keyword string) ([]*jobs.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.postings[keyword], nil
}

func TestServiceRunStoresAndCategorizes(t *testing.T) {
	repo := &stubRepo{}
	source := &stubSource{
		name: "stub",
		postings: map[string][]*jobs.Job{
			"biology": {
				{ID: "a-1", Title: "Research Scientist", Description: "wet lab", URL: "https://example.com/a1"},
				{ID: "a-2", Title: "Backend Developer", Description: "go services", URL: "https://example.com/a2"},
			},
		},
	}

	service := NewService([]Source{source}, repo, []string{"biology"}, nil)
	inserted, err := service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	require.Len(t, repo.stored, 2)
	assert.Equal(t, "Research", repo.stored[0].Category)
	assert.Equal(t, "STEM", repo.stored[1].Category)
}

func TestServiceRunContinuesAfterSourceFailure(t *testing.T) {
	repo := &stubRepo{}
	broken := &stubSource{name: "broken", err: fmt.Errorf("api unavailable")}
	working := &stubSource{
		name: "working",
		postings: map[string][]*jobs.Job{
			"biology": {{ID: "b-1", Title: "Lab Technician", URL: "https://example.com/b1"}},
		},
	}

	service := NewService([]Source{broken, working}, repo, []string{"biology"}, nil)
	inserted, err := service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		title       string
		description string
		want        string
	}{
		{"Research Scientist", "", "Research"},
		{"Clinical Nurse", "", "Healthcare"},
		{"Software Engineer", "", "STEM"},
		{"Office Manager", "general administration", "Other"},
		// カテゴリ順で先に一致したものが優先される
		{"Research Software Engineer", "", "Research"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.title, tt.description), tt.title)
	}
}

func TestAdzunaSourceFetch(t *testing.T) {
	var pagesRequested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesRequested = append(pagesRequested, r.URL.Path)

		assert.Equal(t, "test-id", r.URL.Query().Get("app_id"))
		assert.Equal(t, "test-key", r.URL.Query().Get("app_key"))
		assert.Equal(t, "biology", r.URL.Query().Get("what"))

		if len(pagesRequested) > 1 {
			fmt.Fprint(w, `{"results": []}`)
			return
		}
		fmt.Fprint(w, `{
			"results": [
				{
					"id": "12345",
					"title": "Marine Biologist",
					"company": {"display_name": "Ocean Corp"},
					"description": "study marine ecosystems",
					"location": {"display_name": "Plymouth, Devon", "area": ["UK", "South West England", "Devon", "Plymouth"]},
					"category": {"label": "Scientific & QA Jobs"},
					"salary_min": 30000,
					"salary_max": 40000,
					"redirect_url": "https://example.com/12345",
					"created": "2026-08-01T09:00:00Z"
				}
			]
		}`)
	}))
	defer server.Close()

	source := NewAdzunaSource("test-id", "test-key", "gb")
	source.baseURL = server.URL
	source.pageDelay = 0

	postings, err := source.Fetch(context.Background(), "biology")
	require.NoError(t, err)
	require.Len(t, postings, 1)

	job := postings[0]
	assert.Equal(t, "adzuna-12345", job.ID)
	assert.Equal(t, "Marine Biologist", job.Title)
	assert.Equal(t, "Ocean Corp", job.Company)
	assert.Equal(t, "Plymouth", job.LocationShort)
	assert.Equal(t, "Plymouth, Devon", job.LocationLong)
	assert.Equal(t, "30000 - 40000", job.SalaryRange)
	require.NotNil(t, job.DatePosted)
	assert.Equal(t, 2026, job.DatePosted.Year())

	// 空ページでページングが打ち切られる
	assert.Equal(t, []string{"/gb/search/1", "/gb/search/2"}, pagesRequested)
}

func TestAdzunaSourceFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	source := NewAdzunaSource("bad-id", "bad-key", "gb")
	source.baseURL = server.URL
	source.pageDelay = 0

	_, err := source.Fetch(context.Background(), "biology")
	assert.ErrorContains(t, err, "status 403")
}

func TestJoobleSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/secret-key", r.URL.Path)

		var req joobleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bioinformatics", req.Keywords)

		fmt.Fprint(w, `{
			"jobs": [
				{
					"id": 987,
					"title": "Bioinformatician",
					"company": "Genome Ltd",
					"snippet": "pipelines for sequencing data",
					"location": "Cambridge",
					"salary": "£45k",
					"link": "https://example.com/987",
					"updated": "2026-08-15T12:00:00Z"
				}
			]
		}`)
	}))
	defer server.Close()

	source := NewJoobleSource("secret-key")
	source.baseURL = server.URL

	postings, err := source.Fetch(context.Background(), "bioinformatics")
	require.NoError(t, err)
	require.Len(t, postings, 1)

	job := postings[0]
	assert.Equal(t, "jooble-987", job.ID)
	assert.Equal(t, "Bioinformatician", job.Title)
	assert.Equal(t, "Genome Ltd", job.Company)
	assert.Equal(t, "Cambridge", job.LocationShort)
	assert.Equal(t, "£45k", job.SalaryRange)
	require.NotNil(t, job.DatePosted)
}

func TestSalaryRange(t *testing.T) {
	assert.Equal(t, "30000 - 40000", salaryRange(30000, 40000))
	assert.Equal(t, "30000+", salaryRange(30000, 0))
	assert.Equal(t, "up to 40000", salaryRange(0, 40000))
	assert.Equal(t, "", salaryRange(0, 0))
}
