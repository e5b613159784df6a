package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/jobmatch/internal/core/embedding"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はデフォルトのベクトル次元
	DefaultEmbeddingDimension = 768
	// MaxInputTokens は embedding API が1入力あたり受け付ける上限トークン数
	MaxInputTokens = 8191
	// MaxBatchSize はバッチ処理の最大サイズ（OpenAI APIは最大100件）
	MaxBatchSize = 100
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	encoding  *tiktoken.Tiktoken
}

type embedderOptions struct {
	model     string
	dimension int
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(&options)
	}

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}

	return &Embedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:     options.model,
		dimension: options.dimension,
		encoding:  enc,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	return embeddings[0], nil
}

// BatchEmbed はバッチで Embedding を生成する（最大100件）。
// トークン上限を超える入力は末尾を切り詰めてから送信する。
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch size exceeds maximum of %d", MaxBatchSize)
	}

	truncated := make([]string, len(texts))
	for i, text := range texts {
		truncated[i] = e.truncateToTokenLimit(text)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}

	if len(truncated) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(truncated[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: truncated,
		}
	}

	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	var embeddings [][]float32
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings = append(embeddings, vector)
	}

	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はBatchEmbedへ一度に渡せるテキスト数の上限を返す
func (e *Embedder) MaxBatchSize() int {
	return MaxBatchSize
}

func (e *Embedder) truncateToTokenLimit(text string) string {
	tokens := e.encoding.Encode(text, nil, nil)
	if len(tokens) <= MaxInputTokens {
		return text
	}
	return e.encoding.Decode(tokens[:MaxInputTokens])
}

// インターフェース実装の確認
var _ embedding.Model = (*Embedder)(nil)
