package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	vsdomain "github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
)

// TestBuildContext はスコア降順のラベル付きコンテキストが組み立てられることを確認します
func TestBuildContext(t *testing.T) {
	results := []vsdomain.SearchResult{
		{Text: "first chunk", DocumentID: "doc-a", SequenceIndex: 3, Score: 0.9},
		{Text: "second chunk", DocumentID: "doc-b", SequenceIndex: 0, Score: 0.5},
	}

	context := BuildContext(results)

	// ラベルは検索結果の順序（スコア降順）に対応し、ドキュメント順ではない
	assert.Equal(t, "Document 1:\nfirst chunk\n\nDocument 2:\nsecond chunk", context)
}

// TestBuildContextEmpty は検索結果0件で空文字列になることを確認します
func TestBuildContextEmpty(t *testing.T) {
	assert.Equal(t, "", BuildContext(nil))
	assert.Equal(t, "", BuildContext([]vsdomain.SearchResult{}))
}

// TestBuildAnswerPrompt はプロンプトに質問・コンテキスト・接地指示が含まれることを確認します
func TestBuildAnswerPrompt(t *testing.T) {
	prompt := BuildAnswerPrompt("what is the calibration procedure?", "Document 1:\nsensor calibration steps")

	assert.Contains(t, prompt, "USER QUESTION: what is the calibration procedure?")
	assert.Contains(t, prompt, "Document 1:\nsensor calibration steps")
	assert.Contains(t, prompt, "ONLY the information provided in the context")
	assert.Contains(t, prompt, "Do not make up information")

	// コンテキストは質問より前に置かれる
	assert.Less(t, strings.Index(prompt, "CONTEXT:"), strings.Index(prompt, "USER QUESTION:"))
}

// TestBuildAnswerPromptEmptyContext は空コンテキストでも該当情報なしを伝える指示が入ることを確認します
func TestBuildAnswerPromptEmptyContext(t *testing.T) {
	prompt := BuildAnswerPrompt("anything?", "")

	assert.Contains(t, prompt, "no relevant documents were found")
	assert.Contains(t, prompt, "USER QUESTION: anything?")
}
