package application

import (
	"fmt"
	"strings"

	vsdomain "github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
)

// BuildContext は検索結果をスコア降順のまま連結してコンテキスト文字列を組み立てます
// 各チャンクは "Document N:" のラベル付きで、空行区切りで並べる
func BuildContext(results []vsdomain.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for i, result := range results {
		parts = append(parts, fmt.Sprintf("Document %d:\n%s", i+1, result.Text))
	}
	return strings.Join(parts, "\n\n")
}

// BuildAnswerPrompt はコンテキストに厳密に基づいて回答させるプロンプトを構築します
// コンテキストが空の場合も、該当情報がない旨を回答させる指示を含める
func BuildAnswerPrompt(question, context string) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful AI assistant that answers questions based on the provided document context.\n\n")

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Answer the user's question using ONLY the information provided in the context below\n")
	sb.WriteString("- If the context doesn't contain enough information to answer the question, say so clearly\n")
	sb.WriteString("- Be concise but comprehensive in your response\n")
	sb.WriteString("- If you mention specific information, indicate which document it came from\n")
	sb.WriteString("- Do not make up information that isn't in the context\n\n")

	sb.WriteString("CONTEXT:\n")
	if context != "" {
		sb.WriteString(context)
		sb.WriteString("\n")
	} else {
		sb.WriteString("(no relevant documents were found; tell the user that no relevant information is available)\n")
	}
	sb.WriteString("\n")

	sb.WriteString("USER QUESTION: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")

	sb.WriteString("Please provide a helpful answer based on the context above.")

	return sb.String()
}
