package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChunkCoverage はオーバーラップを除去して連結すると元テキストが復元されることを確認します
func TestChunkCoverage(t *testing.T) {
	tests := []struct {
		name      string
		textLen   int
		chunkSize int
		overlap   int
	}{
		{name: "overlap zero", textLen: 1000, chunkSize: 100, overlap: 0},
		{name: "small overlap", textLen: 1000, chunkSize: 100, overlap: 25},
		{name: "large overlap", textLen: 1000, chunkSize: 100, overlap: 99},
		{name: "exact multiple", textLen: 500, chunkSize: 250, overlap: 75},
		{name: "shorter than chunk", textLen: 50, chunkSize: 100, overlap: 25},
		{name: "one over chunk size", textLen: 101, chunkSize: 100, overlap: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := buildText(tt.textLen)

			c, err := New(tt.chunkSize, tt.overlap)
			require.NoError(t, err)

			chunks := c.Split("doc-1", text)
			require.NotEmpty(t, chunks)

			// 先頭チャンク以外はoverlap分を除去して連結する
			var sb strings.Builder
			for i, chunk := range chunks {
				runes := []rune(chunk.Text)
				if i == 0 {
					sb.WriteString(chunk.Text)
				} else {
					sb.WriteString(string(runes[tt.overlap:]))
				}
			}
			assert.Equal(t, text, sb.String())

			// チャンク数が公式と一致する
			assert.Len(t, chunks, c.Count(tt.textLen))
		})
	}
}

// TestChunkInvariants はSequenceIndexの連番性とチャンク長の上限を確認します
func TestChunkInvariants(t *testing.T) {
	c, err := New(250, 75)
	require.NoError(t, err)

	text := buildText(1800)
	chunks := c.Split("doc-1", text)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.SequenceIndex)
		assert.Equal(t, "doc-1", chunk.DocumentID)
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 250)
		assert.Equal(t, i*(250-75), chunk.StartOffset)
	}

	// 最終チャンク以外はchunkSizeちょうど
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.Len(t, []rune(chunk.Text), 250)
	}
}

// TestChunkScenario は3ページ×600文字、size=250/overlap=75で10チャンクになることを確認します
func TestChunkScenario(t *testing.T) {
	c, err := New(250, 75)
	require.NoError(t, err)

	// 1800文字: ceil((1800-75)/175) = 10
	text := buildText(1800)
	chunks := c.Split("doc-1", text)
	assert.Len(t, chunks, 10)
	assert.Equal(t, 10, c.Count(1800))
}

// TestChunkEdgeCases は空テキストと短いテキストの境界動作を確認します
func TestChunkEdgeCases(t *testing.T) {
	c, err := New(250, 75)
	require.NoError(t, err)

	t.Run("empty text yields zero chunks", func(t *testing.T) {
		assert.Empty(t, c.Split("doc-1", ""))
		assert.Equal(t, 0, c.Count(0))
	})

	t.Run("text shorter than chunk size yields one chunk", func(t *testing.T) {
		chunks := c.Split("doc-1", "short text")
		require.Len(t, chunks, 1)
		assert.Equal(t, "short text", chunks[0].Text)
		assert.Equal(t, 0, chunks[0].SequenceIndex)
	})

	t.Run("text exactly chunk size yields one chunk", func(t *testing.T) {
		text := buildText(250)
		chunks := c.Split("doc-1", text)
		require.Len(t, chunks, 1)
		assert.Equal(t, text, chunks[0].Text)
	})

	t.Run("multibyte runes are not split", func(t *testing.T) {
		mc, err := New(5, 2)
		require.NoError(t, err)

		text := "日本語のテキストを分割する"
		chunks := mc.Split("doc-1", text)
		var sb strings.Builder
		for i, chunk := range chunks {
			runes := []rune(chunk.Text)
			if i == 0 {
				sb.WriteString(chunk.Text)
			} else {
				sb.WriteString(string(runes[2:]))
			}
		}
		assert.Equal(t, text, sb.String())
	})
}

// TestChunkConfigValidation は不正な設定がChunkErrorとして拒否されることを確認します
func TestChunkConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{name: "zero chunk size", chunkSize: 0, overlap: 0},
		{name: "negative chunk size", chunkSize: -1, overlap: 0},
		{name: "negative overlap", chunkSize: 100, overlap: -1},
		{name: "overlap equals chunk size", chunkSize: 100, overlap: 100},
		{name: "overlap exceeds chunk size", chunkSize: 100, overlap: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.chunkSize, tt.overlap)
			assert.Error(t, err)
		})
	}
}

// TestChunksIteratorRestart はイテレータが再走査可能であることを確認します
func TestChunksIteratorRestart(t *testing.T) {
	c, err := New(100, 25)
	require.NoError(t, err)

	text := buildText(500)
	seq := c.Chunks("doc-1", text)

	var first, second []string
	for chunk := range seq {
		first = append(first, chunk.Text)
	}
	for chunk := range seq {
		second = append(second, chunk.Text)
	}
	assert.Equal(t, first, second)
}

// buildText は決定的なテスト用テキストを生成します
func buildText(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz "
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[i%len(alphabet)])
	}
	return sb.String()
}
