package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定（ジョブキューの永続化に使用）
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 回答生成）
	OpenAI OpenAIConfig

	// Ollama設定（ローカルLLMで回答生成する場合に使用）
	Ollama OllamaConfig

	// LLMProvider は回答生成に使用するプロバイダ ("openai" or "ollama")
	LLMProvider string

	// Qdrant設定（ベクトルストア）
	Qdrant QdrantConfig

	// Ingest設定（チャンク化とワーカープール）
	Ingest IngestConfig

	// Chat設定（検索と回答生成）
	Chat ChatConfig

	// HTTPサーバ設定
	HTTP HTTPConfig

	// Log設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
}

// OllamaConfig はOllama API設定
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// QdrantConfig はQdrant接続設定
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
}

// IngestConfig は取り込みパイプラインの設定
type IngestConfig struct {
	// ChunkSize はチャンクの最大文字数（rune単位）
	ChunkSize int
	// ChunkOverlap は隣接チャンク間の重複文字数
	ChunkOverlap int
	// WorkerConcurrency はワーカープールの並列数
	WorkerConcurrency int
	// MaxJobAttempts はジョブ失敗時の最大試行回数（超過でデッドレター）
	MaxJobAttempts int
	// EmbedRateLimit はEmbedding API呼び出しの秒間リクエスト数上限
	EmbedRateLimit float64
	// EmbedMaxRetries はEmbedding失敗時の最大リトライ回数
	EmbedMaxRetries int
	// UploadDir はアップロードされたPDFの保存先ディレクトリ
	UploadDir string
}

// ChatConfig は検索・回答生成の設定
type ChatConfig struct {
	// RetrievalK は類似検索で取得するチャンク数
	RetrievalK int
	// Temperature / TopP / TopK / MaxOutputTokens は生成時のデコードパラメータ
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	// MaxContextTokens はプロンプトに含めるコンテキストのトークン上限
	MaxContextTokens int
}

// HTTPConfig はHTTPサーバ設定
type HTTPConfig struct {
	Port int
}

// LogConfig はロガーの設定
type LogConfig struct {
	// Level はログレベル ("debug", "info", "warn", "error")
	Level string
	// Format は出力形式 ("json" or "text")
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "pdfrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "pdfrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		Ollama: OllamaConfig{
			BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434/api"),
			Model:   getEnv("OLLAMA_MODEL", "llama3"),
		},
		LLMProvider: getEnv("LLM_PROVIDER", "openai"),
		Qdrant: QdrantConfig{
			Host:       getEnv("QDRANT_HOST", "localhost"),
			Port:       getEnvAsInt("QDRANT_PORT", 6334),
			Collection: getEnv("QDRANT_COLLECTION", "pdf-docs"),
		},
		Ingest: IngestConfig{
			ChunkSize:         getEnvAsInt("CHUNK_SIZE", 250),
			ChunkOverlap:      getEnvAsInt("CHUNK_OVERLAP", 75),
			WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
			MaxJobAttempts:    getEnvAsInt("MAX_JOB_ATTEMPTS", 3),
			EmbedRateLimit:    getEnvAsFloat("EMBED_RATE_LIMIT", 5),
			EmbedMaxRetries:   getEnvAsInt("EMBED_MAX_RETRIES", 3),
			UploadDir:         getEnv("UPLOAD_DIR", "./uploads"),
		},
		Chat: ChatConfig{
			RetrievalK:       getEnvAsInt("RETRIEVAL_K", 2),
			Temperature:      getEnvAsFloat("GEN_TEMPERATURE", 0.3),
			TopP:             getEnvAsFloat("GEN_TOP_P", 0.8),
			TopK:             getEnvAsInt("GEN_TOP_K", 40),
			MaxOutputTokens:  getEnvAsInt("GEN_MAX_OUTPUT_TOKENS", 2048),
			MaxContextTokens: getEnvAsInt("CHAT_MAX_CONTEXT_TOKENS", 4096),
		},
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は設定値の整合性を検証します
func (c *Config) validate() error {
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must satisfy 0 <= overlap < chunk size, got overlap=%d size=%d",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Ingest.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Ingest.WorkerConcurrency)
	}
	if c.Chat.RetrievalK <= 0 {
		return fmt.Errorf("RETRIEVAL_K must be positive, got %d", c.Chat.RetrievalK)
	}
	switch c.LLMProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("LLM_PROVIDER must be \"openai\" or \"ollama\", got %q", c.LLMProvider)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"text\", got %q", c.Log.Format)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
