package embedding

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultChunkSize は長文を分割する際のデフォルト文字数
const DefaultChunkSize = 512

// Model は文Embeddingモデルへの narrow interface。
// モデル本体（OpenAI API等）はinfra層で実装する。
type Model interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
	// BatchEmbed は複数テキストのEmbeddingを一括生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension は出力ベクトルの次元数を返す
	Dimension() int
	// MaxBatchSize はBatchEmbedが1回で受け付けるテキスト数の上限を返す
	MaxBatchSize() int
}

// Service はテキストをEmbeddingベクトルへ変換するゲートウェイ。
// モデル呼び出しの失敗は呼び出し元へ伝播させず、ゼロベクトルへ
// 縮退させる。呼び出し元は常に正しい次元のベクトルを受け取る。
type Service struct {
	model     Model
	chunkSize int
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithChunkSize は長文分割の文字チャンクサイズを上書きする
func WithChunkSize(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(model Model, opts ...ServiceOption) *Service {
	s := &Service{
		model:     model,
		chunkSize: DefaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimension は生成されるベクトルの次元数を返す
func (s *Service) Dimension() int {
	return s.model.Dimension()
}

// Embed は単一テキストのEmbeddingを生成する。
// 空文字・空白のみの入力はモデルを呼ばずにゼロベクトルを返す。
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return make([]float32, s.model.Dimension())
	}

	vec, err := s.model.Embed(ctx, text)
	if err != nil {
		s.logger.Error("テキストのEmbedding生成に失敗しました", "error", err)
		return make([]float32, s.model.Dimension())
	}
	return vec
}

// EmbedLong は長文のEmbeddingを生成する。テキストを固定長の文字チャンク
// に分割（重複なし、末尾チャンクは短くてよい）し、モデルのバッチ上限
// ごとにまとめてEmbeddingして要素ごとの平均を返す。バッチ生成に失敗した
// 場合はチャンク単位の逐次生成へフォールバックし、それでも失敗した
// チャンクはゼロベクトルとして平均に含める。
func (s *Service) EmbedLong(ctx context.Context, text string) []float32 {
	dim := s.model.Dimension()
	if strings.TrimSpace(text) == "" {
		return make([]float32, dim)
	}

	chunks := splitChunks(text, s.chunkSize)
	if len(chunks) == 0 {
		return make([]float32, dim)
	}

	batchSize := s.model.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		batchVectors, err := s.model.BatchEmbed(ctx, batch)
		if err != nil {
			s.logger.Warn("バッチEmbeddingに失敗したため逐次生成へフォールバックします",
				"chunks", len(batch), "error", err)
			batchVectors = s.embedSequential(ctx, batch, dim)
		}
		vectors = append(vectors, batchVectors...)
	}

	return meanVector(vectors, dim)
}

// embedSequential はチャンクを1件ずつEmbeddingする。
// 失敗したチャンクはゼロベクトルへ縮退させ、平均の分母には残す。
func (s *Service) embedSequential(ctx context.Context, chunks []string, dim int) [][]float32 {
	vectors := make([][]float32, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := s.model.Embed(ctx, chunk)
		if err != nil {
			s.logger.Error("逐次Embedding生成に失敗しました", "error", err)
			vec = make([]float32, dim)
		}
		vectors = append(vectors, vec)
	}
	return vectors
}

// splitChunks はテキストをsizeごとの連続した文字チャンクへ分割する
func splitChunks(text string, size int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// meanVector は複数ベクトルの要素ごとの平均を返す
func meanVector(vectors [][]float32, dim int) []float32 {
	mean := make([]float32, dim)
	if len(vectors) == 0 {
		return mean
	}

	sum := make([]float64, dim)
	for _, vec := range vectors {
		for i := 0; i < dim && i < len(vec); i++ {
			sum[i] += float64(vec[i])
		}
	}
	for i := range mean {
		mean[i] = float32(sum[i] / float64(len(vectors)))
	}
	return mean
}
