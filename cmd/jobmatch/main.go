package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/jobmatch/cmd/jobmatch/commands"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "jobmatch",
		Usage: "求人ベクトル検索・マッチングシステム",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "build",
						Usage: "Embeddingのバックフィルとインデックス再構築を実行",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.IndexBuildAction,
					},
				},
			},
			{
				Name:  "search",
				Usage: "求人検索コマンド",
				Commands: []*cli.Command{
					{
						Name:  "text",
						Usage: "テキストクエリで検索",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "page",
								Usage: "ページ番号",
								Value: 1,
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "1ページあたりの件数",
								Value: 10,
							},
							&cli.BoolFlag{
								Name:  "json",
								Usage: "JSON形式で出力",
							},
						},
						Action: commands.SearchTextAction,
					},
					{
						Name:  "resume",
						Usage: "レジュメファイル（PDF/DOCX）で検索",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "file",
								Usage:    "レジュメファイルパス",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "page",
								Usage: "ページ番号",
								Value: 1,
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "1ページあたりの件数",
								Value: 10,
							},
							&cli.BoolFlag{
								Name:  "json",
								Usage: "JSON形式で出力",
							},
						},
						Action: commands.SearchResumeAction,
					},
				},
			},
			{
				Name:  "fetch",
				Usage: "求人収集コマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "求人収集を1回実行",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:  "keywords",
								Usage: "検索キーワード（カンマ区切り、省略時はデフォルトセット）",
							},
						},
						Action: commands.FetchRunAction,
					},
					{
						Name:  "schedule",
						Usage: "求人収集をスケジュール実行",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:  "keywords",
								Usage: "検索キーワード（カンマ区切り、省略時はデフォルトセット）",
							},
							&cli.StringFlag{
								Name:  "cron",
								Usage: "Cron形式のスケジュール (例: 0 6 * * * = 毎日6:00)",
								Value: "0 6 * * *",
							},
						},
						Action: commands.FetchScheduleAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
