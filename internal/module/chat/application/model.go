package application

import (
	"fmt"

	vsdomain "github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
)

// AskResult は1回の質問応答の結果
type AskResult struct {
	// Answer は生成モデルの出力をそのまま保持する
	Answer string
	// Sources は回答の根拠となった検索結果（スコア降順）
	Sources []vsdomain.SearchResult
}

// QueryError は検索または回答生成の失敗を表す
// 利用者向けには汎用メッセージを返し、原因はログにのみ残すこと
type QueryError struct {
	Stage string // "embed", "search", "generate"
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed at %s: %v", e.Stage, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
