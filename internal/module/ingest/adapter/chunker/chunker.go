package chunker

import (
	"iter"

	"github.com/jinford/pdf-rag/internal/module/ingest/domain"
)

// Chunker はテキストを固定長のオーバーラップ付きウィンドウに分割します
// (text, chunkSize, overlap) のみに依存する純粋な変換で、副作用を持ちません
type Chunker struct {
	chunkSize int // 1チャンクの最大文字数（rune単位）
	overlap   int // 隣接チャンク間で重複する文字数
}

// New は新しいChunkerを作成します
// 0 <= overlap < chunkSize を満たさない設定は ChunkError として拒否します
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, &domain.ChunkError{ChunkSize: chunkSize, Overlap: overlap, Reason: "chunk size must be positive"}
	}
	if overlap < 0 {
		return nil, &domain.ChunkError{ChunkSize: chunkSize, Overlap: overlap, Reason: "overlap must not be negative"}
	}
	if overlap >= chunkSize {
		return nil, &domain.ChunkError{ChunkSize: chunkSize, Overlap: overlap, Reason: "overlap must be smaller than chunk size"}
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunks はチャンク列を遅延生成するイテレータを返します
// イテレータは何度でも最初から走査し直せます
// 空テキストは0件、chunkSize以下のテキストは全文を含む1件になります
func (c *Chunker) Chunks(documentID, text string) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(text)
		n := len(runes)
		if n == 0 {
			return
		}

		step := c.chunkSize - c.overlap
		seq := 0
		for start := 0; ; start += step {
			remaining := n - start
			end := start + c.chunkSize
			last := remaining <= c.chunkSize
			if last {
				end = n
			}

			chunk := domain.Chunk{
				DocumentID:    documentID,
				SequenceIndex: seq,
				Text:          string(runes[start:end]),
				StartOffset:   start,
			}
			if !yield(chunk) {
				return
			}
			if last {
				return
			}
			seq++
		}
	}
}

// Split はテキスト全体をチャンク化してスライスで返します
func (c *Chunker) Split(documentID, text string) []domain.Chunk {
	var chunks []domain.Chunk
	for chunk := range c.Chunks(documentID, text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Count は長さn（rune数）のテキストから生成されるチャンク数を返します
func (c *Chunker) Count(n int) int {
	if n == 0 {
		return 0
	}
	if n <= c.chunkSize {
		return 1
	}
	step := c.chunkSize - c.overlap
	return (n - c.overlap + step - 1) / step
}
