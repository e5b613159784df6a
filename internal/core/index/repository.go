package index

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound は指定名のインデックスが永続化されていないことを示す
var ErrSnapshotNotFound = errors.New("index snapshot not found")

// Snapshot は永続化されたインデックスのレコード
type Snapshot struct {
	Name       string
	Data       []byte
	Dimension  int
	NumVectors int
	CreatedAt  time.Time
}

// MappingEntry はインデックス内位置と求人IDの対応
type MappingEntry struct {
	Position int64
	JobID    string
}

// Store はインデックスblobと位置マッピングの永続化を提供する
type Store interface {
	// EnsureSchema は必要なテーブルが存在しない場合に作成する
	EnsureSchema(ctx context.Context) error

	// GetSnapshot は指定名のスナップショットを返す。
	// 存在しない場合は ErrSnapshotNotFound を返す。
	GetSnapshot(ctx context.Context, name string) (*Snapshot, error)

	// SaveSnapshot はスナップショットのupsertとマッピングの全置換を
	// 1トランザクションで行う。読み手が新blobと旧マッピングの組を
	// 観測することはない。jobIDs の順序が位置0..len-1に対応する。
	SaveSnapshot(ctx context.Context, snapshot *Snapshot, jobIDs []string) error

	// ListMapping は指定名の全マッピング行を返す
	ListMapping(ctx context.Context, name string) ([]MappingEntry, error)
}
