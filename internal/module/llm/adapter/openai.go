package adapter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/pdf-rag/internal/module/llm/domain"
)

const (
	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries は一時的エラー時の最大リトライ回数
	DefaultMaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

// OpenAIEmbedder はOpenAI Embeddings APIを使用したEmbedder実装
// レート制限・サーバエラーは有界のExponential Backoffでリトライし、
// 使い切った場合は EmbeddingError を返す
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimension  int
	maxRetries int
	timeout    time.Duration
}

// NewOpenAIEmbedder は新しいOpenAIEmbedderを作成します
func NewOpenAIEmbedder(apiKey, model string, dimension, maxRetries int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, domain.ErrAPIKeyNotSet
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimension:  dimension,
		maxRetries: maxRetries,
		timeout:    DefaultTimeout,
	}, nil
}

// Embed はテキストからEmbeddingベクトルを生成する
// domain.Embedderインターフェースを実装
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &domain.EmbeddingError{Model: e.model, Err: fmt.Errorf("no embeddings generated")}
	}
	return embeddings[0], nil
}

// EmbedBatch は複数テキストのEmbeddingをまとめて生成します（最大100件）
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > 100 {
		return nil, fmt.Errorf("batch size exceeds maximum of 100")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}
	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}
	// dimensionパラメータはtext-embedding-3系でのみ有効
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.embedWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings = append(embeddings, vector)
	}

	return embeddings, nil
}

// embedWithRetry は一時的エラー時にExponential Backoffでリトライする
func (e *OpenAIEmbedder) embedWithRetry(ctx context.Context, params openai.EmbeddingNewParams) (*openai.CreateEmbeddingResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			lastErr = err
			if isTransientError(err) {
				continue
			}
			return nil, &domain.EmbeddingError{Model: e.model, Err: err}
		}

		return resp, nil
	}

	return nil, &domain.EmbeddingError{
		Model: e.model,
		Err:   fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, lastErr),
	}
}

// Dimension はEmbeddingベクトルの次元数を返す
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// ModelName はEmbeddingモデルの識別子を返す
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// OpenAIGenerator はOpenAI Chat Completions APIを使用したGenerator実装
type OpenAIGenerator struct {
	client  openai.Client
	model   string
	params  domain.GenerationParams
	timeout time.Duration
}

// NewOpenAIGenerator は新しいOpenAIGeneratorを作成します
func NewOpenAIGenerator(apiKey, model string, params domain.GenerationParams) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, domain.ErrAPIKeyNotSet
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &OpenAIGenerator{
		client:  client,
		model:   model,
		params:  params,
		timeout: DefaultTimeout,
	}, nil
}

// Generate はプロンプトに対する生成結果を返します
// TopKはOpenAI APIに存在しないため適用されない
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(g.params.Temperature),
		TopP:        openai.Float(g.params.TopP),
	}
	if g.params.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(g.params.MaxOutputTokens))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &domain.GenerationError{Model: g.model, Err: err}
	}

	if len(completion.Choices) == 0 {
		return "", &domain.GenerationError{Model: g.model, Err: fmt.Errorf("no completion choices returned")}
	}

	return completion.Choices[0].Message.Content, nil
}

// ModelName は生成モデルの識別子を返す
func (g *OpenAIGenerator) ModelName() string {
	return g.model
}

// waitBackoff はattempt回目のリトライ前にExponential Backoffで待機する
func waitBackoff(ctx context.Context, attempt int) error {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
	if backoff > MaxBackoff {
		backoff = MaxBackoff
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

// isTransientError はリトライ対象のエラー（レート制限・サーバエラー）かどうかを判定する
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}

// インターフェース実装の確認
var _ domain.Embedder = (*OpenAIEmbedder)(nil)
var _ domain.Generator = (*OpenAIGenerator)(nil)
