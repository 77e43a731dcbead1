package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/pdf-rag/internal/module/ingest/domain"
)

// UploadService はアップロードされたPDFをディスクに保存し、取り込みジョブを積みます
// 保存とエンキューが完了した時点でHTTPリクエストには応答でき、
// 実際のパイプラインはワーカーが非同期に実行する
type UploadService struct {
	queue     domain.Queue
	uploadDir string
	logger    *slog.Logger
}

// UploadOption はUploadService構築時のオプション
type UploadOption func(*UploadService)

// WithUploadLogger はロガーを差し替える
func WithUploadLogger(logger *slog.Logger) UploadOption {
	return func(s *UploadService) {
		s.logger = logger
	}
}

// NewUploadService は新しいUploadServiceを作成します
// uploadDirが存在しない場合は作成する
func NewUploadService(queue domain.Queue, uploadDir string, opts ...UploadOption) (*UploadService, error) {
	if uploadDir == "" {
		return nil, fmt.Errorf("upload directory must not be empty")
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	s := &UploadService{
		queue:     queue,
		uploadDir: uploadDir,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Accept はPDFの内容を保存してジョブをエンキューし、作成されたジョブを返します
// 保存先のファイル名は「タイムスタンプ-乱数-元ファイル名」で一意化する
func (s *UploadService) Accept(ctx context.Context, filename string, content io.Reader) (*domain.UploadJob, error) {
	base := sanitizeFilename(filename)
	if base == "" {
		return nil, fmt.Errorf("filename must not be empty")
	}

	storedName := fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), randomSuffix(), base)
	storedPath := filepath.Join(s.uploadDir, storedName)

	if err := writeFile(storedPath, content); err != nil {
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	job := domain.UploadJob{
		ID:         uuid.New(),
		Filename:   base,
		SourcePath: storedPath,
		EnqueuedAt: time.Now(),
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		// エンキューできなかったファイルは残さない
		if rmErr := os.Remove(storedPath); rmErr != nil {
			s.logger.Warn("failed to remove orphaned upload", "path", storedPath, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to enqueue upload job: %w", err)
	}

	s.logger.Info("upload accepted", "job_id", job.ID, "filename", base, "path", storedPath)
	return &job, nil
}

// writeFile は内容をファイルに書き出し、失敗時は書きかけのファイルを消します
func writeFile(path string, content io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}

	return nil
}

// sanitizeFilename はパス区切りを取り除いたベース名を返します
func sanitizeFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

// randomSuffix はファイル名衝突を避けるための短い乱数文字列を返します
func randomSuffix() string {
	return uuid.New().String()[:8]
}
