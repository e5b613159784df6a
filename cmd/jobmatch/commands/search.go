package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/jobmatch/internal/core/search"
	"github.com/jinford/jobmatch/internal/infra/resume"
)

// SearchTextAction はテキストクエリで求人を検索するコマンドのアクション
func SearchTextAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	page := cmd.Int("page")
	limit := cmd.Int("limit")
	asJSON := cmd.Bool("json")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	result := appCtx.Searcher.SearchJobs(ctx, query, appCtx.Config.Index.TopK, page, limit)
	return printResults(result, asJSON)
}

// SearchResumeAction はレジュメファイルで求人を検索するコマンドのアクション
func SearchResumeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	path := cmd.String("file")
	page := cmd.Int("page")
	limit := cmd.Int("limit")
	asJSON := cmd.Bool("json")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("レジュメファイルの読み込みに失敗: %w", err)
	}

	text, err := resume.NewParser().Extract(path, data)
	if err != nil {
		return fmt.Errorf("レジュメの解析に失敗: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	result := appCtx.Searcher.SearchJobs(ctx, text, appCtx.Config.Index.TopK, page, limit)
	return printResults(result, asJSON)
}

func printResults(result *search.Page, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	fmt.Printf("該当求人: %d件 (ページ %d/%d)\n\n", result.Total, result.PageNumber, result.TotalPages)
	for i, match := range result.Results {
		fmt.Printf("%d. %s\n", i+1, match.Job.Title)
		fmt.Printf("   会社: %s\n", match.Job.Company)
		fmt.Printf("   勤務地: %s\n", match.Job.Location())
		fmt.Printf("   給与: %s\n", match.Job.SalaryRange)
		fmt.Printf("   スコア: %.3f\n", match.Score)
		fmt.Printf("   URL: %s\n\n", match.Job.URL)
	}
	return nil
}
