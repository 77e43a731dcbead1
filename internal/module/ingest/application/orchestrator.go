package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jinford/pdf-rag/internal/module/ingest/domain"
	llmdomain "github.com/jinford/pdf-rag/internal/module/llm/domain"
	vsdomain "github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
)

const (
	// defaultPollInterval はキューが空のときの再ポーリング間隔
	defaultPollInterval = time.Second

	// embedBatchSize は1回のEmbedding API呼び出しに載せる最大チャンク数
	embedBatchSize = 100

	// settleTimeout はAck/Nackの完了待ちの上限
	settleTimeout = 10 * time.Second
)

// ジョブの状態遷移: Queued → Loading → Chunking → Embedding → Upserting → Completed
// 任意の非終端状態からFailedに遷移しうる
const (
	StageLoading   = "loading"
	StageChunking  = "chunking"
	StageEmbedding = "embedding"
	StageUpserting = "upserting"
)

// Orchestrator はキューからジョブを取り出し、
// Load → Chunk → Embed → Upsert のパイプラインをワーカープールで駆動します
type Orchestrator struct {
	queue    domain.Queue
	loader   domain.Loader
	splitter domain.Splitter
	embedder llmdomain.Embedder
	store    vsdomain.Store

	concurrency  int
	pollInterval time.Duration
	logger       *slog.Logger
}

// OrchestratorOption はOrchestrator構築時のオプション
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger はロガーを差し替える
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithPollInterval はキュー空時のポーリング間隔を設定する
func WithPollInterval(interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.pollInterval = interval
	}
}

// NewOrchestrator は新しいOrchestratorを作成します
func NewOrchestrator(
	queue domain.Queue,
	loader domain.Loader,
	splitter domain.Splitter,
	embedder llmdomain.Embedder,
	store vsdomain.Store,
	concurrency int,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}

	o := &Orchestrator{
		queue:        queue,
		loader:       loader,
		splitter:     splitter,
		embedder:     embedder,
		store:        store,
		concurrency:  concurrency,
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Run はN個のワーカーを起動し、コンテキストがキャンセルされるまでジョブを処理し続けます
// ワーカーは1ジョブずつ処理し、ジョブ間の順序は保証しない
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < o.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.workerLoop(ctx, workerID)
		}(i)
	}

	wg.Wait()
}

// workerLoop は1ワーカーのデキュー・処理ループです
func (o *Orchestrator) workerLoop(ctx context.Context, workerID int) {
	logger := o.logger.With("worker", workerID)

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := o.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}

			var malformed *domain.MalformedJobError
			switch {
			case errors.Is(err, domain.ErrNoJob):
				// キューが空: 少し待って再試行
			case errors.As(err, &malformed):
				// 不正ペイロードはキュー側でデッドレター済み
				logger.Warn("rejected malformed job payload", "error", err)
				continue
			default:
				logger.Error("failed to dequeue job", "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(o.pollInterval):
			}
			continue
		}

		o.handleJob(ctx, logger, *job)
	}
}

// handleJob は1ジョブを処理し、結果に応じてAck/Nackします
// Ack/Nackはワーカー停止（ctxキャンセル）中でも記録できるよう、
// 親のキャンセルから切り離したコンテキストで行う
// これを怠ると停止中に失敗したジョブがrunningのまま残り、二度と配られない
func (o *Orchestrator) handleJob(ctx context.Context, logger *slog.Logger, job domain.UploadJob) {
	logger = logger.With("job_id", job.ID, "filename", job.Filename)
	logger.Info("job started")

	result, err := o.ProcessJob(ctx, job)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if err != nil {
		stage := stageOf(err)
		logger.Error("job failed", "stage", stage, "error", err)

		if nackErr := o.queue.Nack(settleCtx, job, fmt.Sprintf("%s: %v", stage, err)); nackErr != nil {
			logger.Error("failed to nack job", "error", nackErr)
		}
		return
	}

	if ackErr := o.queue.Ack(settleCtx, job); ackErr != nil {
		logger.Error("failed to ack job", "error", ackErr)
		return
	}

	logger.Info("job completed", "chunks_processed", result.ChunksProcessed)
}

// ProcessJob は1ジョブ分のパイプラインを実行します
// ステージは Load → Chunk → Embed → Upsert の順に直列で進み、
// いずれかのエラーでジョブ全体が失敗します
func (o *Orchestrator) ProcessJob(ctx context.Context, job domain.UploadJob) (*domain.IngestResult, error) {
	// ドキュメントIDにはアップロード時に一意化されたパスを使う
	documentID := job.SourcePath

	// Loading
	pages, err := o.loader.Load(ctx, job.SourcePath)
	if err != nil {
		return nil, err
	}

	// Chunking: ページを結合してドキュメント全体をチャンク化する
	text := joinPages(pages)
	chunks := o.splitter.Split(documentID, text)

	// 空ドキュメントは正常完了として扱う（Embedding/Upsertは呼ばない）
	if len(chunks) == 0 {
		return &domain.IngestResult{Success: true, ChunksProcessed: 0}, nil
	}

	// Embedding: チャンクとベクトルの対応はインデックスで保つ
	vectors, err := o.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	// Upserting: 1ジョブ分を単一のコミットポイントで書き込む
	records := make([]vsdomain.VectorRecord, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, vsdomain.NewRecord(chunk.DocumentID, chunk.SequenceIndex, chunk.Text, vectors[i]))
	}
	if err := o.store.UpsertBatch(ctx, records); err != nil {
		return nil, err
	}

	return &domain.IngestResult{Success: true, ChunksProcessed: len(chunks)}, nil
}

// embedChunks はチャンク列をバッチ単位でEmbeddingします
// 戻り値はchunksと同じ順序・同じ長さ
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}

		batch, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, &llmdomain.EmbeddingError{
				Model: o.embedder.ModelName(),
				Err:   fmt.Errorf("expected %d embeddings, got %d", len(texts), len(batch)),
			}
		}

		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// joinPages はページテキストをドキュメント全文に結合します
func joinPages(pages []domain.DocumentPage) string {
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		texts = append(texts, page.Text)
	}
	return strings.Join(texts, "\n")
}

// stageOf はエラー種別から失敗ステージ名を求めます
func stageOf(err error) string {
	var loadErr *domain.LoadError
	if errors.As(err, &loadErr) {
		return StageLoading
	}
	var chunkErr *domain.ChunkError
	if errors.As(err, &chunkErr) {
		return StageChunking
	}
	var embedErr *llmdomain.EmbeddingError
	if errors.As(err, &embedErr) {
		return StageEmbedding
	}
	var upsertErr *vsdomain.UpsertError
	if errors.As(err, &upsertErr) {
		return StageUpserting
	}
	return "unknown"
}
