package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// recordNamespace は冪等キー導出用の固定ネームスペース
var recordNamespace = uuid.MustParse("8f14b7a2-3c51-4a0e-9d27-6b84f0c2d9e1")

// Payload はベクトルと一緒に永続化されるチャンクのメタデータ
type Payload struct {
	Text          string
	DocumentID    string
	SequenceIndex int
}

// VectorRecord はベクトルストアに永続化される1レコード
// IDは (DocumentID, SequenceIndex) から決定的に導出される冪等キー
type VectorRecord struct {
	ID      uuid.UUID
	Vector  []float32
	Payload Payload
}

// SearchResult は類似検索でヒットした1件
type SearchResult struct {
	Text          string
	DocumentID    string
	SequenceIndex int
	Score         float32
}

// Store はベクトルストアへの読み書きインターフェース
// 書き込みは冪等なupsertのみで、同一キーの再書き込みは上書きになる
type Store interface {
	// EnsureCollection はコレクションが存在しなければ作成する
	// dimensionは使用するEmbeddingモデルの次元数と一致させること
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert は1レコードを書き込む
	Upsert(ctx context.Context, record VectorRecord) error

	// UpsertBatch は複数レコードを単一のコミットポイントで書き込む
	// 1ジョブ分のチャンクを部分的に取り込まないための唯一の書き込み経路
	UpsertBatch(ctx context.Context, records []VectorRecord) error

	// Search はクエリベクトルに類似する上位k件をスコア降順で返す
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)
}

// RecordID は (documentID, sequenceIndex) から冪等キーを決定的に導出します
// 同一ドキュメントの再取り込みは同じキー集合を生成し、重複レコードを作らない
func RecordID(documentID string, sequenceIndex int) uuid.UUID {
	return uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%s:%d", documentID, sequenceIndex)))
}

// NewRecord はチャンク情報とベクトルからVectorRecordを組み立てます
func NewRecord(documentID string, sequenceIndex int, text string, vector []float32) VectorRecord {
	return VectorRecord{
		ID:     RecordID(documentID, sequenceIndex),
		Vector: vector,
		Payload: Payload{
			Text:          text,
			DocumentID:    documentID,
			SequenceIndex: sequenceIndex,
		},
	}
}

// UpsertError はベクトルストアへの書き込み失敗を表す
type UpsertError struct {
	Err error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("vector upsert failed: %v", e.Err)
}

func (e *UpsertError) Unwrap() error {
	return e.Err
}
