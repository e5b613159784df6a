// Package httpapi は求人マッチング検索のHTTP APIを提供する。
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/jobmatch/internal/core/search"
	"github.com/jinford/jobmatch/internal/infra/resume"
)

const (
	// descriptionPreviewLength はレスポンスに含める説明文プレビューの文字数
	descriptionPreviewLength = 200
	// maxResumeSize はアップロード可能なレジュメの最大サイズ
	maxResumeSize = 10 << 20
	// resumeTopK はレジュメ検索で近傍探索する候補数
	resumeTopK = 50
)

// Server は検索APIのHTTPサーバー
type Server struct {
	searcher *search.Service
	parser   *resume.Parser
	port     int
	logger   *slog.Logger
}

// NewServer は新しい Server を作成する
func NewServer(searcher *search.Service, parser *resume.Parser, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		searcher: searcher,
		parser:   parser,
		port:     port,
		logger:   logger,
	}
}

// Handler はルーティング済みのHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /search/text", s.handleTextSearch)
	mux.HandleFunc("POST /search/resume", s.handleResumeSearch)
	return s.withRequestLog(mux)
}

// Start はサーバーを起動し、ctxのキャンセルでグレースフルに停止する
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバーを起動します", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	s.logger.Info("HTTPサーバーを停止しました")
	return nil
}

// withRequestLog はリクエストIDの付与とアクセスログを行うミドルウェア
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Info("HTTPリクエストを処理しました",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type searchResponse struct {
	QueryType  string      `json:"query_type"`
	QueryText  string      `json:"query_text"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	Results    []jobResult `json:"results"`
}

type jobResult struct {
	JobID              string  `json:"job_id"`
	Title              string  `json:"title"`
	Company            string  `json:"company"`
	Location           string  `json:"location"`
	Category           string  `json:"category"`
	SalaryRange        string  `json:"salary_range"`
	URL                string  `json:"url"`
	DatePosted         string  `json:"date_posted,omitempty"`
	Score              float64 `json:"score"`
	DescriptionPreview string  `json:"description_preview"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTextSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter is required"})
		return
	}

	page := formInt(r, "page", 1)
	limit := formInt(r, "limit", search.DefaultLimit)

	result := s.searcher.SearchJobs(r.Context(), query, 0, page, limit)
	writeJSON(w, http.StatusOK, toSearchResponse("text", query, result))
}

func (s *Server) handleResumeSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxResumeSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("resume")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "resume file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxResumeSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read resume file"})
		return
	}

	text, err := s.parser.Extract(header.Filename, data)
	if err != nil {
		if errors.Is(err, resume.ErrUnsupportedFormat) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("レジュメの解析に失敗しました", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to parse resume file"})
		return
	}
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "resume contains no extractable text"})
		return
	}

	page := formInt(r, "page", 1)
	limit := formInt(r, "limit", search.DefaultLimit)

	result := s.searcher.SearchJobs(r.Context(), text, resumeTopK, page, limit)
	writeJSON(w, http.StatusOK, toSearchResponse("resume", header.Filename, result))
}

func toSearchResponse(queryType, queryText string, result *search.Page) searchResponse {
	resp := searchResponse{
		QueryType:  queryType,
		QueryText:  queryText,
		Total:      result.Total,
		Page:       result.PageNumber,
		TotalPages: result.TotalPages,
		Results:    []jobResult{},
	}

	for _, match := range result.Results {
		jr := jobResult{
			JobID:              match.Job.ID,
			Title:              match.Job.Title,
			Company:            match.Job.Company,
			Location:           match.Job.Location(),
			Category:           match.Job.Category,
			SalaryRange:        match.Job.SalaryRange,
			URL:                match.Job.URL,
			Score:              match.Score,
			DescriptionPreview: previewDescription(match.Job.Description),
		}
		if match.Job.DatePosted != nil {
			jr.DatePosted = match.Job.DatePosted.Format("2006-01-02")
		}
		resp.Results = append(resp.Results, jr)
	}
	return resp
}

// previewDescription は説明文の先頭を切り出したプレビューを返す
func previewDescription(description string) string {
	runes := []rune(description)
	if len(runes) <= descriptionPreviewLength {
		return description
	}
	return string(runes[:descriptionPreviewLength]) + "..."
}

// formInt はクエリ文字列またはフォームフィールドから整数値を読み取る
func formInt(r *http.Request, name string, fallback int) int {
	raw := r.FormValue(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
