package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoJob はキューに処理可能なジョブがない場合に Dequeue が返す
	ErrNoJob = errors.New("no job available")
)

// LoadError はソースファイルが読み取れない・不正な場合のエラー
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load document %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ChunkError はチャンク化設定が不正な場合のエラー
type ChunkError struct {
	ChunkSize int
	Overlap   int
	Reason    string
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("invalid chunking configuration (size=%d, overlap=%d): %s", e.ChunkSize, e.Overlap, e.Reason)
}

// MalformedJobError はキュー境界でのジョブペイロード検証エラー
// 不正なペイロードはパイプラインに入る前に即座に棄却する
type MalformedJobError struct {
	Reason string
}

func (e *MalformedJobError) Error() string {
	return fmt.Sprintf("malformed job payload: %s", e.Reason)
}
