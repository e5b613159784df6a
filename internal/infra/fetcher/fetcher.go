// Package fetcher は外部求人APIから求人情報を収集するクローラーを提供する。
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jinford/jobmatch/internal/core/jobs"
)

// Source は求人情報の取得元を表す
type Source interface {
	// Name は取得元の識別名を返す
	Name() string
	// Fetch はキーワードに一致する求人を取得する
	Fetch(ctx context.Context, keyword string) ([]*jobs.Job, error)
}

// Service は複数の取得元から求人を収集しDBへ格納する
type Service struct {
	sources  []Source
	repo     jobs.Repository
	keywords []string
	logger   *slog.Logger
}

// DefaultKeywords は検索対象とするデフォルトのキーワード群
var DefaultKeywords = []string{
	"biology",
	"bioinformatics",
	"data scientist",
	"research scientist",
	"laboratory technician",
}

// NewService は新しい Service を作成する
func NewService(sources []Source, repo jobs.Repository, keywords []string, logger *slog.Logger) *Service {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sources:  sources,
		repo:     repo,
		keywords: keywords,
		logger:   logger,
	}
}

// Run は全取得元・全キーワードの収集を1回実行する。
// 取得元単位の失敗はログに残して続行する。
func (s *Service) Run(ctx context.Context) (int, error) {
	total := 0
	for _, source := range s.sources {
		for _, keyword := range s.keywords {
			postings, err := source.Fetch(ctx, keyword)
			if err != nil {
				s.logger.Error("求人の取得に失敗しました",
					"source", source.Name(), "keyword", keyword, "error", err)
				continue
			}

			for _, job := range postings {
				if job.Category == "" || job.Category == jobs.NotSpecified {
					job.Category = Categorize(job.Title, job.Description)
				}
			}

			inserted, err := s.repo.InsertIfAbsent(ctx, postings)
			if err != nil {
				return total, fmt.Errorf("failed to store fetched jobs: %w", err)
			}
			total += inserted

			s.logger.Info("求人を収集しました",
				"source", source.Name(),
				"keyword", keyword,
				"fetched", len(postings),
				"inserted", inserted)
		}
	}
	return total, nil
}

// カテゴリ判定用のキーワード。先に一致したカテゴリが優先される。
var categoryKeywords = []struct {
	category string
	terms    []string
}{
	{"Research", []string{"research", "scientist", "postdoc", "phd", "laboratory", "lab "}},
	{"Healthcare", []string{"clinical", "nurse", "medical", "health", "pharma", "patient"}},
	{"STEM", []string{"engineer", "developer", "data", "software", "bioinformatics", "analyst", "technician"}},
}

// Categorize はタイトルと説明文からカテゴリを推定する
func Categorize(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, ck := range categoryKeywords {
		for _, term := range ck.terms {
			if strings.Contains(text, term) {
				return ck.category
			}
		}
	}
	return "Other"
}

// Scheduler は収集処理を定期実行する
type Scheduler struct {
	service  *Service
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewScheduler は新しい Scheduler を作成する
func NewScheduler(service *Service, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		service:  service,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start はスケジューラーを起動する
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if _, err := s.service.Run(ctx); err != nil {
			s.logger.Error("定期収集の実行に失敗しました", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron ジョブの登録に失敗: %w", err)
	}

	s.cron.Start()
	s.logger.Info("定期収集を開始しました", "schedule", s.schedule)
	return nil
}

// Stop はスケジューラーを停止する
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("定期収集を停止しました")
}
