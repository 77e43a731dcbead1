package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	llmdomain "github.com/jinford/pdf-rag/internal/module/llm/domain"
	vsdomain "github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
)

// ChatService は質問応答のユースケースを提供します
// ステートレスで、1回の呼び出しが embed → 検索 → プロンプト構築 → 生成 の
// パイプライン1回分に対応します
type ChatService struct {
	embedder  llmdomain.Embedder
	store     vsdomain.Store
	generator llmdomain.Generator

	retrievalK       int
	maxContextTokens int
	encoder          *tiktoken.Tiktoken

	logger *slog.Logger
}

// ChatServiceOption はChatService構築時のオプション
type ChatServiceOption func(*ChatService)

// WithChatLogger はロガーを差し替える
func WithChatLogger(logger *slog.Logger) ChatServiceOption {
	return func(s *ChatService) {
		s.logger = logger
	}
}

// WithMaxContextTokens はコンテキストのトークン上限を設定する
func WithMaxContextTokens(maxTokens int) ChatServiceOption {
	return func(s *ChatService) {
		s.maxContextTokens = maxTokens
	}
}

// NewChatService は新しいChatServiceを作成します
// embedderは取り込みパイプラインと同一インスタンスを渡すこと
func NewChatService(
	embedder llmdomain.Embedder,
	store vsdomain.Store,
	generator llmdomain.Generator,
	retrievalK int,
	opts ...ChatServiceOption,
) (*ChatService, error) {
	if retrievalK <= 0 {
		return nil, fmt.Errorf("retrievalK must be positive, got %d", retrievalK)
	}

	// cl100k_baseエンコーダでコンテキスト長を測る
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	svc := &ChatService{
		embedder:   embedder,
		store:      store,
		generator:  generator,
		retrievalK: retrievalK,
		encoder:    encoder,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Ask は質問に対してRAGベースで回答を生成します
func (s *ChatService) Ask(ctx context.Context, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	// 1. 質問文のEmbedding（取り込みと同じモデル）
	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, &QueryError{Stage: "embed", Err: err}
	}

	// 2. 類似検索
	results, err := s.store.Search(ctx, queryVector, s.retrievalK)
	if err != nil {
		return nil, &QueryError{Stage: "search", Err: err}
	}

	s.logger.Info("retrieval completed",
		"question_length", len(question),
		"retrieved", len(results),
	)

	// 3. コンテキスト組み立てとプロンプト構築
	contextText := BuildContext(results)
	if s.maxContextTokens > 0 {
		contextText = s.trimToTokenLimit(contextText, s.maxContextTokens)
	}
	prompt := BuildAnswerPrompt(question, contextText)

	// 4. 回答生成
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, &QueryError{Stage: "generate", Err: err}
	}

	s.logger.Info("answer generated",
		"answer_length", len(answer),
		"sources", len(results),
	)

	return &AskResult{
		Answer:  answer,
		Sources: results,
	}, nil
}

// trimToTokenLimit はコンテキストを指定トークン数に収まるようトリミングします
func (s *ChatService) trimToTokenLimit(text string, maxTokens int) string {
	tokens := s.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return s.encoder.Decode(tokens[:maxTokens])
}
