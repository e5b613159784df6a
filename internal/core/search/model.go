package search

import "github.com/jinford/jobmatch/internal/core/jobs"

// JobMatch は類似度スコア付きの求人
type JobMatch struct {
	Job   *jobs.Job
	Score float64
}

// Page はページネーション済みの検索結果
type Page struct {
	Results    []*JobMatch
	Total      int
	PageNumber int
	TotalPages int
}

// emptyPage は明示的な空結果を返す
func emptyPage(page int) *Page {
	return &Page{
		Results:    []*JobMatch{},
		Total:      0,
		PageNumber: page,
		TotalPages: 0,
	}
}
