package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/jobmatch/internal/infra/fetcher"
)

func buildFetcherService(appCtx *AppContext, keywordsFlag string) (*fetcher.Service, error) {
	var sources []fetcher.Source

	cfg := appCtx.Config.Fetcher
	if cfg.AdzunaAppID != "" && cfg.AdzunaAppKey != "" {
		sources = append(sources, fetcher.NewAdzunaSource(cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry))
	}
	if cfg.JoobleAPIKey != "" {
		sources = append(sources, fetcher.NewJoobleSource(cfg.JoobleAPIKey))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("求人取得元が設定されていません（ADZUNA_APP_ID/ADZUNA_APP_KEY または JOOBLE_API_KEY を設定してください）")
	}

	var keywords []string
	if keywordsFlag != "" {
		for _, kw := range strings.Split(keywordsFlag, ",") {
			if trimmed := strings.TrimSpace(kw); trimmed != "" {
				keywords = append(keywords, trimmed)
			}
		}
	}

	return fetcher.NewService(sources, appCtx.JobsRepo, keywords, appCtx.Logger), nil
}

// FetchRunAction は求人収集を1回実行するコマンドのアクション
func FetchRunAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	keywords := cmd.String("keywords")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	service, err := buildFetcherService(appCtx, keywords)
	if err != nil {
		return err
	}

	inserted, err := service.Run(ctx)
	if err != nil {
		return fmt.Errorf("求人収集に失敗: %w", err)
	}

	slog.Info("求人収集が完了しました", "inserted", inserted)
	return nil
}

// FetchScheduleAction は求人収集をスケジュール実行するコマンドのアクション
func FetchScheduleAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	keywords := cmd.String("keywords")
	schedule := cmd.String("cron")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	service, err := buildFetcherService(appCtx, keywords)
	if err != nil {
		return err
	}

	scheduler := fetcher.NewScheduler(service, schedule, appCtx.Logger)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("スケジューラーの起動に失敗: %w", err)
	}
	defer scheduler.Stop()

	// シグナル受信まで待機
	<-ctx.Done()
	return nil
}
