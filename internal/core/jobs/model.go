package jobs

import "time"

// NotSpecified は任意項目が未設定の場合の表示値
const NotSpecified = "Not specified"

// Job は求人レコードを表す。ストレージ読み出し境界で欠損項目を
// デフォルト値に正規化した上で生成される。
type Job struct {
	// ID は求人の識別子。ソースによっては数値だがテキストとして扱う。
	ID          string
	Title       string
	Company     string
	Description string

	LocationShort string
	LocationLong  string
	Category      string
	SalaryRange   string
	URL           string

	DatePosted *time.Time
}

// Location は長い表記を優先した所在地を返す
func (j *Job) Location() string {
	if j.LocationLong != "" && j.LocationLong != NotSpecified {
		return j.LocationLong
	}
	if j.LocationShort != "" && j.LocationShort != NotSpecified {
		return j.LocationShort
	}
	return NotSpecified
}

// JobVector は求人IDとそのEmbeddingの組
type JobVector struct {
	JobID  string
	Vector []float32
}
