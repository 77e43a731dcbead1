package domain

import "context"

// GenerationParams は回答生成時のデコードパラメータ
// top_k はプロバイダによっては適用されない（OpenAI APIには存在しない）
type GenerationParams struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// Generator はプロンプトからテキストを生成するインターフェース
type Generator interface {
	// Generate はプロンプトに対する生成結果をそのまま返す
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName は生成モデルの識別子を返す
	ModelName() string
}
