package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jinford/pdf-rag/internal/module/llm/domain"
)

// OllamaGenerator はローカルOllamaサーバを使用したGenerator実装
// OpenAIと異なりtop_kを含む全デコードパラメータを適用できる
type OllamaGenerator struct {
	baseURL    string
	model      string
	params     domain.GenerationParams
	httpClient *http.Client
}

// ollamaRequest はOllama /generate APIへのリクエスト
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// ollamaOptions は生成時のデコードパラメータ
type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaResponse はOllama /generate APIからのレスポンス
type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaGenerator は新しいOllamaGeneratorを作成します
func NewOllamaGenerator(baseURL, model string, params domain.GenerationParams) *OllamaGenerator {
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	return &OllamaGenerator{
		baseURL: baseURL,
		model:   model,
		params:  params,
		httpClient: &http.Client{
			// ローカル推論は長時間かかることがある
			Timeout: 5 * time.Minute,
		},
	}
}

// Generate はプロンプトに対する生成結果を返します
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := ollamaRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: g.params.Temperature,
			TopP:        g.params.TopP,
			TopK:        g.params.TopK,
			NumPredict:  g.params.MaxOutputTokens,
		},
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", &domain.GenerationError{Model: g.model, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &domain.GenerationError{
			Model: g.model,
			Err:   fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, body),
		}
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.GenerationError{Model: g.model, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return out.Response, nil
}

// ModelName は生成モデルの識別子を返す
func (g *OllamaGenerator) ModelName() string {
	return g.model
}

// インターフェース実装の確認
var _ domain.Generator = (*OllamaGenerator)(nil)
