package domain

import "context"

// Splitter はドキュメント全文をチャンク列に分割するインターフェース
// 実装は (text, chunkSize, overlap) のみに依存する純粋関数であること
type Splitter interface {
	Split(documentID, text string) []Chunk
}

// Loader は保存済みファイルからページごとのテキストを抽出するインターフェース
type Loader interface {
	// Load はファイルパスからページ順のテキスト列を取得する
	// ファイルが存在しない・読めない・形式が不正な場合は LoadError を返す
	Load(ctx context.Context, path string) ([]DocumentPage, error)
}

// Queue は耐久性のあるジョブキューのインターフェース
// 実体のブローカーは外部（Postgres等）で、ここでは契約のみを定義する
type Queue interface {
	// Enqueue はジョブをキューに積む
	Enqueue(ctx context.Context, job UploadJob) error

	// Dequeue は処理可能なジョブを1件取得して実行中にする
	// ジョブがない場合は ErrNoJob を返す
	Dequeue(ctx context.Context) (*UploadJob, error)

	// Ack はジョブを完了にする
	Ack(ctx context.Context, job UploadJob) error

	// Nack はジョブを失敗として記録する
	// 試行回数が上限未満なら再キュー、上限到達でデッドレターに落とす
	Nack(ctx context.Context, job UploadJob, reason string) error
}
