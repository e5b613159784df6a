package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/jobmatch/internal/infra/resume"
	"github.com/jinford/jobmatch/internal/interface/httpapi"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	port := cmd.Int("port")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	if port == 0 {
		port = appCtx.Config.Server.Port
	}

	server := httpapi.NewServer(appCtx.Searcher, resume.NewParser(), port, appCtx.Logger)
	return server.Start(ctx)
}
