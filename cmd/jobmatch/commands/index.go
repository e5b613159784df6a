package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
)

// IndexBuildAction はEmbeddingのバックフィルとインデックス再構築を実行する
func IndexBuildAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	slog.Info("インデックス構築を開始します", "index_name", appCtx.Config.Index.Name)

	if err := appCtx.IndexStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("スキーマの初期化に失敗: %w", err)
	}
	if err := appCtx.JobsRepo.EnsureEmbeddingColumn(ctx); err != nil {
		return fmt.Errorf("embeddingカラムの初期化に失敗: %w", err)
	}

	if err := appCtx.Builder.Run(ctx); err != nil {
		return fmt.Errorf("インデックス構築に失敗: %w", err)
	}

	slog.Info("インデックス構築が完了しました", "index_name", appCtx.Config.Index.Name)
	return nil
}
