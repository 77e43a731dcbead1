package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vsdomain "github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
)

// fakeEmbedder は受け取ったテキストを記録する決定的なEmbedder
type fakeEmbedder struct {
	lastText string
	err      error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake-embedding" }

// fakeStore は固定の検索結果を返すStore
type fakeStore struct {
	results []vsdomain.SearchResult
	lastK   int
	err     error
}

func (f *fakeStore) EnsureCollection(ctx context.Context, dimension int) error { return nil }
func (f *fakeStore) Upsert(ctx context.Context, record vsdomain.VectorRecord) error {
	return nil
}
func (f *fakeStore) UpsertBatch(ctx context.Context, records []vsdomain.VectorRecord) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, k int) ([]vsdomain.SearchResult, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// fakeGenerator は受け取ったプロンプトを記録して固定回答を返すGenerator
type fakeGenerator struct {
	lastPrompt string
	answer     string
	err        error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) ModelName() string { return "fake-llm" }

// TestAsk は embed → 検索 → プロンプト → 生成 のパイプラインを一気通貫で確認します
func TestAsk(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{
		results: []vsdomain.SearchResult{
			{Text: "temperature sensor calibration procedure", DocumentID: "doc-a", SequenceIndex: 0, Score: 0.92},
			{Text: "unrelated maintenance notes", DocumentID: "doc-b", SequenceIndex: 4, Score: 0.41},
		},
	}
	generator := &fakeGenerator{answer: "The calibration procedure is described in Document 1."}

	svc, err := NewChatService(embedder, store, generator, 2)
	require.NoError(t, err)

	result, err := svc.Ask(context.Background(), "how do I calibrate the sensor?")
	require.NoError(t, err)

	// 質問文そのものがEmbeddingされる（固定文字列ではない）
	assert.Equal(t, "how do I calibrate the sensor?", embedder.lastText)
	// 設定されたkで検索する
	assert.Equal(t, 2, store.lastK)
	// プロンプトにはコンテキストと質問の両方が含まれる
	assert.Contains(t, generator.lastPrompt, "temperature sensor calibration procedure")
	assert.Contains(t, generator.lastPrompt, "Document 1:")
	assert.Contains(t, generator.lastPrompt, "USER QUESTION: how do I calibrate the sensor?")
	// 生成結果はそのまま返る
	assert.Equal(t, "The calibration procedure is described in Document 1.", result.Answer)
	assert.Len(t, result.Sources, 2)
}

// TestAskEmptyRetrieval は検索0件でも該当情報なしを伝えるプロンプトで生成が走ることを確認します
func TestAskEmptyRetrieval(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{results: nil}
	generator := &fakeGenerator{answer: "No relevant information was found."}

	svc, err := NewChatService(embedder, store, generator, 2)
	require.NoError(t, err)

	result, err := svc.Ask(context.Background(), "anything?")
	require.NoError(t, err)

	assert.Contains(t, generator.lastPrompt, "no relevant documents were found")
	assert.Equal(t, "No relevant information was found.", result.Answer)
	assert.Empty(t, result.Sources)
}

// TestAskValidation は空の質問が拒否されることを確認します
func TestAskValidation(t *testing.T) {
	svc, err := NewChatService(&fakeEmbedder{}, &fakeStore{}, &fakeGenerator{}, 2)
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), "   ")
	assert.Error(t, err)
}

// TestAskErrorPropagation は各ステージの失敗がQueryErrorとして返ることを確認します
func TestAskErrorPropagation(t *testing.T) {
	t.Run("embed failure", func(t *testing.T) {
		embedder := &fakeEmbedder{err: errors.New("provider down")}
		svc, err := NewChatService(embedder, &fakeStore{}, &fakeGenerator{}, 2)
		require.NoError(t, err)

		_, err = svc.Ask(context.Background(), "question")
		var qErr *QueryError
		require.ErrorAs(t, err, &qErr)
		assert.Equal(t, "embed", qErr.Stage)
	})

	t.Run("search failure", func(t *testing.T) {
		store := &fakeStore{err: errors.New("store unavailable")}
		svc, err := NewChatService(&fakeEmbedder{}, store, &fakeGenerator{}, 2)
		require.NoError(t, err)

		_, err = svc.Ask(context.Background(), "question")
		var qErr *QueryError
		require.ErrorAs(t, err, &qErr)
		assert.Equal(t, "search", qErr.Stage)
	})

	t.Run("generate failure", func(t *testing.T) {
		generator := &fakeGenerator{err: errors.New("model overloaded")}
		svc, err := NewChatService(&fakeEmbedder{}, &fakeStore{}, generator, 2)
		require.NoError(t, err)

		_, err = svc.Ask(context.Background(), "question")
		var qErr *QueryError
		require.ErrorAs(t, err, &qErr)
		assert.Equal(t, "generate", qErr.Stage)
	})
}

// TestAskContextTrim はトークン上限を超えるコンテキストがトリミングされることを確認します
func TestAskContextTrim(t *testing.T) {
	longText := ""
	for i := 0; i < 2000; i++ {
		longText += "calibration "
	}
	store := &fakeStore{
		results: []vsdomain.SearchResult{{Text: longText, DocumentID: "doc-a", Score: 0.9}},
	}
	generator := &fakeGenerator{answer: "ok"}

	svc, err := NewChatService(&fakeEmbedder{}, store, generator, 2, WithMaxContextTokens(100))
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), "question")
	require.NoError(t, err)

	// プロンプト全体が元の長文より大幅に短くなっている
	assert.Less(t, len(generator.lastPrompt), len(longText)/2)
}
