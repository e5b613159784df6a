package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/jobmatch/internal/core/embedding"
	"github.com/jinford/jobmatch/internal/core/index"
	"github.com/jinford/jobmatch/internal/core/search"
	"github.com/jinford/jobmatch/internal/infra/faiss"
	"github.com/jinford/jobmatch/internal/infra/openai"
	"github.com/jinford/jobmatch/internal/infra/postgres"
	"github.com/jinford/jobmatch/internal/platform/logger"
	"github.com/jinford/jobmatch/pkg/config"
	"github.com/jinford/jobmatch/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Database *db.DB
	Logger   *slog.Logger

	JobsRepo   *postgres.JobRepository
	IndexStore *postgres.IndexRepository
	Engine     *faiss.Engine
	Embedder   *embedding.Service
	Cache      *index.Cache
	Builder    *index.Builder
	Searcher   *search.Service
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.DefaultConfig())

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	model, err := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("Embedderの初期化に失敗: %w", err)
	}

	jobsRepo := postgres.NewJobRepository(database.Pool, appLogger)
	indexStore := postgres.NewIndexRepository(database.Pool)
	engine := faiss.NewEngine()
	embedder := embedding.NewService(model,
		embedding.WithChunkSize(cfg.Index.ChunkSize),
		embedding.WithLogger(appLogger),
	)
	cache := index.NewCache(indexStore, engine, jobsRepo, cfg.Index.Name, appLogger)
	builder := index.NewBuilder(jobsRepo, embedder, engine, indexStore, cfg.Index.Name, appLogger)
	searcher := search.NewService(cache, jobsRepo, embedder, appLogger)

	return &AppContext{
		Config:     cfg,
		Database:   database,
		Logger:     appLogger,
		JobsRepo:   jobsRepo,
		IndexStore: indexStore,
		Engine:     engine,
		Embedder:   embedder,
		Cache:      cache,
		Builder:    builder,
		Searcher:   searcher,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Cache != nil {
		ac.Cache.Reset()
	}
	if ac.Database != nil {
		ac.Database.Close()
	}
}
