package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jinford/jobmatch/internal/core/jobs"
)

const (
	adzunaBaseURL = "https://api.adzuna.com/v1/api/jobs"
	// adzunaMaxPages は1キーワードあたりの取得ページ数上限
	adzunaMaxPages = 5
	// adzunaResultsPerPage は1ページあたりの取得件数
	adzunaResultsPerPage = 50
	// adzunaPageDelay はページ間のリクエスト間隔
	adzunaPageDelay = 2 * time.Second
)

// AdzunaSource は Adzuna Jobs API から求人を取得する
type AdzunaSource struct {
	appID     string
	appKey    string
	country   string
	baseURL   string
	pageDelay time.Duration
	client    *http.Client
}

// NewAdzunaSource は新しい AdzunaSource を作成する
func NewAdzunaSource(appID, appKey, country string) *AdzunaSource {
	if country == "" {
		country = "gb"
	}
	return &AdzunaSource{
		appID:     appID,
		appKey:    appKey,
		country:   country,
		baseURL:   adzunaBaseURL,
		pageDelay: adzunaPageDelay,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Source = (*AdzunaSource)(nil)

// Name は取得元の識別名を返す
func (a *AdzunaSource) Name() string {
	return "adzuna"
}

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
}

type adzunaResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Company struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Description string `json:"description"`
	Location    struct {
		DisplayName string   `json:"display_name"`
		Area        []string `json:"area"`
	} `json:"location"`
	Category struct {
		Label string `json:"label"`
	} `json:"category"`
	SalaryMin   float64 `json:"salary_min"`
	SalaryMax   float64 `json:"salary_max"`
	RedirectURL string  `json:"redirect_url"`
	Created     string  `json:"created"`
}

// Fetch はキーワードに一致する求人をページングしながら取得する
func (a *AdzunaSource) Fetch(ctx context.Context, keyword string) ([]*jobs.Job, error) {
	var collected []*jobs.Job

	for page := 1; page <= adzunaMaxPages; page++ {
		if page > 1 {
			select {
			case <-ctx.Done():
				return collected, ctx.Err()
			case <-time.After(a.pageDelay):
			}
		}

		results, err := a.fetchPage(ctx, keyword, page)
		if err != nil {
			return collected, err
		}
		if len(results) == 0 {
			break
		}

		for _, r := range results {
			collected = append(collected, a.toJob(r))
		}
	}

	return collected, nil
}

func (a *AdzunaSource) fetchPage(ctx context.Context, keyword string, page int) ([]adzunaResult, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", a.baseURL, a.country, page)

	query := url.Values{}
	query.Set("app_id", a.appID)
	query.Set("app_key", a.appKey)
	query.Set("what", keyword)
	query.Set("results_per_page", fmt.Sprintf("%d", adzunaResultsPerPage))
	query.Set("content-type", "application/json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build adzuna request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adzuna request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned status %d", resp.StatusCode)
	}

	var body adzunaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode adzuna response: %w", err)
	}
	return body.Results, nil
}

func (a *AdzunaSource) toJob(r adzunaResult) *jobs.Job {
	job := &jobs.Job{
		ID:            fmt.Sprintf("adzuna-%s", r.ID),
		Title:         r.Title,
		Company:       r.Company.DisplayName,
		Description:   r.Description,
		LocationShort: shortLocation(r.Location.Area, r.Location.DisplayName),
		LocationLong:  r.Location.DisplayName,
		Category:      r.Category.Label,
		SalaryRange:   salaryRange(r.SalaryMin, r.SalaryMax),
		URL:           r.RedirectURL,
	}

	if r.Created != "" {
		if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
			job.DatePosted = &t
		}
	}
	return job
}

// shortLocation は地域階層の末端（都市名など）を短縮表記として返す
func shortLocation(area []string, fallback string) string {
	if len(area) > 0 {
		return area[len(area)-1]
	}
	if idx := strings.Index(fallback, ","); idx > 0 {
		return fallback[:idx]
	}
	return fallback
}

func salaryRange(min, max float64) string {
	switch {
	case min > 0 && max > 0:
		return fmt.Sprintf("%.0f - %.0f", min, max)
	case min > 0:
		return fmt.Sprintf("%.0f+", min)
	case max > 0:
		return fmt.Sprintf("up to %.0f", max)
	default:
		return ""
	}
}
