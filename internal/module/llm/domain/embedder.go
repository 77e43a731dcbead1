package domain

import "context"

// Embedder はテキストをベクトル表現に変換するインターフェース
// 取り込みとクエリの両方で同一のEmbedderを使うこと
// モデルが異なるベクトル同士の類似度は意味を持たない
type Embedder interface {
	// Embed はテキストからEmbeddingベクトルを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch は複数テキストのEmbeddingをまとめて生成する
	// 戻り値の順序は入力順と対応する
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension はEmbeddingベクトルの次元数を返す
	Dimension() int

	// ModelName はEmbeddingモデルの識別子を返す
	ModelName() string
}
