package container

import (
	"context"
	"fmt"
	"log/slog"

	chatapp "github.com/jinford/pdf-rag/internal/module/chat/application"
	"github.com/jinford/pdf-rag/internal/module/ingest/adapter/chunker"
	pdfadapter "github.com/jinford/pdf-rag/internal/module/ingest/adapter/pdf"
	pgqueue "github.com/jinford/pdf-rag/internal/module/ingest/adapter/queue/pg"
	ingestapp "github.com/jinford/pdf-rag/internal/module/ingest/application"
	ingestdomain "github.com/jinford/pdf-rag/internal/module/ingest/domain"
	llmadapter "github.com/jinford/pdf-rag/internal/module/llm/adapter"
	llmdomain "github.com/jinford/pdf-rag/internal/module/llm/domain"
	qdrantstore "github.com/jinford/pdf-rag/internal/module/vectorstore/adapter/qdrant"
	vsdomain "github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
	"github.com/jinford/pdf-rag/internal/platform/database"
	"github.com/jinford/pdf-rag/pkg/config"
)

// Container はアプリケーション全体の依存関係を保持します
// サーバ・ワーカーの両プロセスがこのコンテナから必要なサービスを取り出す
type Container struct {
	Queue         ingestdomain.Queue
	UploadService *ingestapp.UploadService
	Orchestrator  *ingestapp.Orchestrator
	ChatService   *chatapp.ChatService

	logger   *slog.Logger
	database *database.Database
	store    *qdrantstore.Store
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  llmdomain.Embedder
	generator llmdomain.Generator
}

// ContainerOption はContainer構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタムEmbedderを注入する
func WithContainerEmbedder(embedder llmdomain.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerGenerator はカスタムGeneratorを注入する
func WithContainerGenerator(generator llmdomain.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// New は設定からコンテナを生成します
// ジョブテーブルのマイグレーションとベクトルコレクションの作成もここで行う
func New(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// データベース（ジョブキューの永続化）
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	queue := pgqueue.NewQueue(db.Pool, cfg.Ingest.MaxJobAttempts)
	if err := queue.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate job queue: %w", err)
	}

	// Embedder（レート制限つき）
	embedder := options.embedder
	if embedder == nil {
		openaiEmbedder, err := llmadapter.NewOpenAIEmbedder(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.EmbeddingModel,
			cfg.OpenAI.EmbeddingDimension,
			cfg.Ingest.EmbedMaxRetries,
		)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		embedder = llmadapter.NewPacedEmbedder(openaiEmbedder, cfg.Ingest.EmbedRateLimit)
	}

	// Generator（プロバイダ切り替え）
	generator := options.generator
	if generator == nil {
		generator, err = newGenerator(cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	// ベクトルストア（Qdrant）
	store, err := qdrantstore.NewStore(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	if err := store.EnsureCollection(ctx, embedder.Dimension()); err != nil {
		store.Close()
		db.Close()
		return nil, fmt.Errorf("failed to ensure vector collection: %w", err)
	}

	// 取り込みパイプライン
	splitter, err := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		store.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	orchestrator, err := ingestapp.NewOrchestrator(
		queue,
		pdfadapter.NewLoader(),
		splitter,
		embedder,
		store,
		cfg.Ingest.WorkerConcurrency,
		ingestapp.WithOrchestratorLogger(options.logger),
	)
	if err != nil {
		store.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	uploadService, err := ingestapp.NewUploadService(
		queue,
		cfg.Ingest.UploadDir,
		ingestapp.WithUploadLogger(options.logger),
	)
	if err != nil {
		store.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize upload service: %w", err)
	}

	// 質問応答パイプライン
	chatService, err := chatapp.NewChatService(
		embedder,
		store,
		generator,
		cfg.Chat.RetrievalK,
		chatapp.WithChatLogger(options.logger),
		chatapp.WithMaxContextTokens(cfg.Chat.MaxContextTokens),
	)
	if err != nil {
		store.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize chat service: %w", err)
	}

	return &Container{
		Queue:         queue,
		UploadService: uploadService,
		Orchestrator:  orchestrator,
		ChatService:   chatService,
		logger:        options.logger,
		database:      db,
		store:         store,
	}, nil
}

// newGenerator は設定されたプロバイダのGeneratorを作成します
func newGenerator(cfg *config.Config) (llmdomain.Generator, error) {
	params := llmdomain.GenerationParams{
		Temperature:     cfg.Chat.Temperature,
		TopP:            cfg.Chat.TopP,
		TopK:            cfg.Chat.TopK,
		MaxOutputTokens: cfg.Chat.MaxOutputTokens,
	}

	switch cfg.LLMProvider {
	case "ollama":
		return llmadapter.NewOllamaGenerator(cfg.Ollama.BaseURL, cfg.Ollama.Model, params), nil
	case "openai":
		generator, err := llmadapter.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.LLMModel, params)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai generator: %w", err)
		}
		return generator, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.LLMProvider)
	}
}

// Close は内部リソースを解放します
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.Logger().Warn("failed to close vector store client", "error", err)
		}
	}
	if c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返します
func (c *Container) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// VectorStore はベクトルストアを返します
func (c *Container) VectorStore() vsdomain.Store {
	if c == nil {
		return nil
	}
	return c.store
}
