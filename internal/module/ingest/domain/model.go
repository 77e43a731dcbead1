package domain

import (
	"time"

	"github.com/google/uuid"
)

// UploadJob はキューに積まれた1件の取り込みリクエストを表す
type UploadJob struct {
	ID         uuid.UUID
	Filename   string
	SourcePath string
	EnqueuedAt time.Time
}

// DocumentPage はPDFから抽出した1ページ分のテキスト
type DocumentPage struct {
	PageNumber int
	Text       string
}

// Chunk は1つのオーバーラップ付きテキストウィンドウ
// SequenceIndex はドキュメント内で0始まりの連番（欠番なし）
type Chunk struct {
	DocumentID    string
	SequenceIndex int
	Text          string
	StartOffset   int
}

// IngestResult は1ジョブの処理結果
type IngestResult struct {
	Success         bool
	ChunksProcessed int
}
