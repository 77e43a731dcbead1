package adapter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/jinford/pdf-rag/internal/module/llm/domain"
)

// PacedEmbedder はEmbedder呼び出しをトークンバケットでペーシングするデコレータです
// 取り込みとクエリの両経路で同一インスタンスを共有することで、
// プロバイダのレート制限をプロセス全体で守ります
type PacedEmbedder struct {
	inner   domain.Embedder
	limiter *rate.Limiter
}

// NewPacedEmbedder は秒間requestsPerSecondに制限されたEmbedderを作成します
// requestsPerSecondが0以下の場合はペーシングしません
func NewPacedEmbedder(inner domain.Embedder, requestsPerSecond float64) *PacedEmbedder {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &PacedEmbedder{inner: inner, limiter: limiter}
}

// Embed はレート制限に従って待機してからEmbeddingを生成します
func (p *PacedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Embed(ctx, text)
}

// EmbedBatch はレート制限に従って待機してからバッチEmbeddingを生成します
// ペーシングの単位はAPI呼び出し1回
func (p *PacedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.EmbedBatch(ctx, texts)
}

// Dimension はEmbeddingベクトルの次元数を返す
func (p *PacedEmbedder) Dimension() int {
	return p.inner.Dimension()
}

// ModelName はEmbeddingモデルの識別子を返す
func (p *PacedEmbedder) ModelName() string {
	return p.inner.ModelName()
}

func (p *PacedEmbedder) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ domain.Embedder = (*PacedEmbedder)(nil)
