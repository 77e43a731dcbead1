package pdf

import (
	"context"
	"fmt"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/jinford/pdf-rag/internal/module/ingest/domain"
)

// Loader はPDFファイルからページごとのテキストを抽出します
// I/O障害はリトライせず LoadError としてそのまま呼び出し元へ返します
type Loader struct{}

// NewLoader は新しいLoaderを作成します
func NewLoader() *Loader {
	return &Loader{}
}

// Load はPDFを開き、ページ番号順にテキストを抽出します
func (l *Loader) Load(ctx context.Context, path string) (pages []domain.DocumentPage, err error) {
	// pdfパッケージは破損したファイルでpanicすることがある
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = &domain.LoadError{Path: path, Err: fmt.Errorf("corrupt pdf: %v", r)}
		}
	}()

	f, reader, err := lpdf.Open(path)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}
	defer f.Close()

	total := reader.NumPage()
	pages = make([]domain.DocumentPage, 0, total)

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, domain.DocumentPage{PageNumber: i, Text: ""})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, &domain.LoadError{Path: path, Err: fmt.Errorf("failed to extract text from page %d: %w", i, err)}
		}

		pages = append(pages, domain.DocumentPage{PageNumber: i, Text: text})
	}

	return pages, nil
}

// インターフェース実装の確認
var _ domain.Loader = (*Loader)(nil)
