package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jinford/jobmatch/internal/core/jobs"
)

const joobleBaseURL = "https://jooble.org/api"

// JoobleSource は Jooble API から求人を取得する
type JoobleSource struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewJoobleSource は新しい JoobleSource を作成する
func NewJoobleSource(apiKey string) *JoobleSource {
	return &JoobleSource{
		apiKey:  apiKey,
		baseURL: joobleBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Source = (*JoobleSource)(nil)

// Name は取得元の識別名を返す
func (j *JoobleSource) Name() string {
	return "jooble"
}

type joobleRequest struct {
	Keywords string `json:"keywords"`
}

type joobleResponse struct {
	Jobs []joobleJob `json:"jobs"`
}

type joobleJob struct {
	ID       json.Number `json:"id"`
	Title    string      `json:"title"`
	Company  string      `json:"company"`
	Snippet  string      `json:"snippet"`
	Location string      `json:"location"`
	Salary   string      `json:"salary"`
	Link     string      `json:"link"`
	Updated  string      `json:"updated"`
}

// Fetch はキーワードに一致する求人を取得する
func (j *JoobleSource) Fetch(ctx context.Context, keyword string) ([]*jobs.Job, error) {
	payload, err := json.Marshal(joobleRequest{Keywords: keyword})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jooble request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s", j.baseURL, j.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build jooble request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jooble request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jooble returned status %d", resp.StatusCode)
	}

	var body joobleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode jooble response: %w", err)
	}

	collected := make([]*jobs.Job, 0, len(body.Jobs))
	for _, r := range body.Jobs {
		job := &jobs.Job{
			ID:            fmt.Sprintf("jooble-%s", r.ID.String()),
			Title:         r.Title,
			Company:       r.Company,
			Description:   r.Snippet,
			LocationShort: r.Location,
			LocationLong:  r.Location,
			SalaryRange:   r.Salary,
			URL:           r.Link,
		}
		if r.Updated != "" {
			if t, err := time.Parse(time.RFC3339, r.Updated); err == nil {
				job.DatePosted = &t
			}
		}
		collected = append(collected, job)
	}
	return collected, nil
}
