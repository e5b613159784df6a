package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings用）
	OpenAI OpenAIConfig

	// FAISSインデックス設定
	Index IndexConfig

	// 求人取得API設定
	Fetcher FetcherConfig

	// HTTPサーバ設定
	Server ServerConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定（Embeddings）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
}

// IndexConfig はベクトルインデックスの設定
type IndexConfig struct {
	// Name は永続化テーブル上のインデックス名
	Name string
	// ChunkSize は長文Embedding時の文字チャンクサイズ
	ChunkSize int
	// TopK は検索時に取得する近傍数の上限
	TopK int
}

// FetcherConfig は求人取得APIの認証設定
type FetcherConfig struct {
	AdzunaAppID   string
	AdzunaAppKey  string
	AdzunaCountry string
	JoobleAPIKey  string
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "jobmatch"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "job_data"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 768),
		},
		Index: IndexConfig{
			Name:      getEnv("INDEX_NAME", "job_matching_index"),
			ChunkSize: getEnvAsInt("EMBEDDING_CHUNK_SIZE", 512),
			TopK:      getEnvAsInt("SEARCH_TOP_K", 200),
		},
		Fetcher: FetcherConfig{
			AdzunaAppID:   getEnv("ADZUNA_APP_ID", ""),
			AdzunaAppKey:  getEnv("ADZUNA_APP_KEY", ""),
			AdzunaCountry: getEnv("ADZUNA_COUNTRY", "us"),
			JoobleAPIKey:  getEnv("JOOBLE_API_KEY", ""),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
