package postgres

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
)

// decodeEmbedding はEmbeddingカラムの値を[]float32へ正規化する。
// 格納エンコーディングは歴史的に揺れており、ネイティブ配列・区切り
// 文字列・float32バッファのいずれも許容する。優先順で試し、ここ以外の
// コードは格納表現に分岐しない。
func decodeEmbedding(value any) ([]float32, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("embedding is null")
	case pgvector.Vector:
		return v.Slice(), nil
	case []float32:
		return append([]float32(nil), v...), nil
	case []float64:
		vec := make([]float32, len(v))
		for i, f := range v {
			vec[i] = float32(f)
		}
		return vec, nil
	case []any:
		return decodeAnySlice(v)
	case string:
		return decodeDelimitedString(v)
	case []byte:
		// テキスト形式に見えるバイト列は文字列として扱う
		if looksLikeText(v) {
			return decodeDelimitedString(string(v))
		}
		return decodeFloat32Buffer(v)
	default:
		return nil, fmt.Errorf("unsupported embedding encoding %T", value)
	}
}

func decodeAnySlice(values []any) ([]float32, error) {
	vec := make([]float32, 0, len(values))
	for i, raw := range values {
		switch f := raw.(type) {
		case float32:
			vec = append(vec, f)
		case float64:
			vec = append(vec, float32(f))
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
			if err != nil {
				return nil, fmt.Errorf("element %d is not a number: %w", i, err)
			}
			vec = append(vec, float32(parsed))
		default:
			return nil, fmt.Errorf("element %d has unsupported type %T", i, raw)
		}
	}
	return vec, nil
}

// decodeDelimitedString は "[0.1,0.2]" や "{0.1,0.2}" 形式を解釈する
func decodeDelimitedString(s string) ([]float32, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty embedding string")
	}

	// pgvectorのテキスト表現はまずpgvector自身に解釈させる
	if strings.HasPrefix(trimmed, "[") {
		var vec pgvector.Vector
		if err := vec.Scan(trimmed); err == nil && len(vec.Slice()) > 0 {
			return vec.Slice(), nil
		}
	}

	trimmed = strings.Trim(trimmed, "[]{}")
	if strings.TrimSpace(trimmed) == "" {
		return nil, fmt.Errorf("empty embedding string")
	}
	parts := strings.Split(trimmed, ",")
	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("element %d is not a number: %w", i, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

// decodeFloat32Buffer はリトルエンディアンのfloat32バッファを解釈する
func decodeFloat32Buffer(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid float32 buffer length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch data[0] {
	case '[', '{':
		return true
	}
	return false
}
