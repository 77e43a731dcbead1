package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/pdf-rag/internal/module/ingest/domain"
)

// defaultVisibilityTimeout はrunningのまま放置されたジョブを再配布するまでの時間
// ワーカーのクラッシュ等でAck/Nackに到達しなかったジョブの取りこぼしを防ぐ
const defaultVisibilityTimeout = 15 * time.Minute

// Queue はPostgresをブローカーとする耐久ジョブキューです
// Dequeue は FOR UPDATE SKIP LOCKED で行を奪い合うため、
// 複数ワーカー・複数プロセスから同時に呼んでも同一ジョブは一度しか配られません
type Queue struct {
	pool              *pgxpool.Pool
	maxAttempts       int
	visibilityTimeout time.Duration
}

// QueueOption はQueue構築時のオプション
type QueueOption func(*Queue)

// WithVisibilityTimeout はrunningジョブを再配布するまでの時間を設定する
func WithVisibilityTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.visibilityTimeout = d
		}
	}
}

// NewQueue は新しいQueueを作成します
// maxAttempts はNack時の再キュー上限で、超過したジョブはデッドレターになります
func NewQueue(pool *pgxpool.Pool, maxAttempts int, opts ...QueueOption) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	q := &Queue{
		pool:              pool,
		maxAttempts:       maxAttempts,
		visibilityTimeout: defaultVisibilityTimeout,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Migrate はキュー用テーブルを作成します
func (q *Queue) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ingest_jobs (
			id          UUID PRIMARY KEY,
			filename    TEXT NOT NULL,
			source_path TEXT NOT NULL,
			state       TEXT NOT NULL DEFAULT 'queued',
			attempts    INT  NOT NULL DEFAULT 0,
			last_error  TEXT,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at  TIMESTAMPTZ,
			finished_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_jobs_dequeue
			ON ingest_jobs (enqueued_at) WHERE state IN ('queued', 'running')`,
	}

	for _, stmt := range statements {
		if _, err := q.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate ingest_jobs: %w", err)
		}
	}
	return nil
}

// Enqueue はジョブをキューに積みます
// 必須フィールドを欠くペイロードはMalformedJobErrorとして即座に棄却します
func (q *Queue) Enqueue(ctx context.Context, job domain.UploadJob) error {
	if err := validateJob(job); err != nil {
		return err
	}

	_, err := q.pool.Exec(ctx, `
		INSERT INTO ingest_jobs (id, filename, source_path, state, enqueued_at)
		VALUES ($1, $2, $3, 'queued', now())
	`, job.ID, job.Filename, job.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue は処理可能なジョブを1件取得し、実行中に遷移させます
// 待機中のジョブに加えて、visibilityTimeoutを超えてrunningのままの
// ジョブ（ワーカーのクラッシュ等でAck/Nackに到達しなかったもの）も再配布します
// 処理可能なジョブがない場合は domain.ErrNoJob を返します
func (q *Queue) Dequeue(ctx context.Context) (*domain.UploadJob, error) {
	row := q.pool.QueryRow(ctx, `
		UPDATE ingest_jobs SET state = 'running', attempts = attempts + 1, started_at = now()
		WHERE id = (
			SELECT id FROM ingest_jobs
			WHERE state = 'queued'
			   OR (state = 'running' AND started_at < now() - make_interval(secs => $1))
			ORDER BY enqueued_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, filename, source_path, enqueued_at
	`, q.visibilityTimeout.Seconds())

	var job domain.UploadJob
	if err := row.Scan(&job.ID, &job.Filename, &job.SourcePath, &job.EnqueuedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoJob
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// 行自体が壊れている場合はパイプラインに入れずデッドレターへ落とす
	if err := validateJob(job); err != nil {
		if nackErr := q.markState(ctx, job.ID, stateDead, err.Error()); nackErr != nil {
			return nil, nackErr
		}
		return nil, err
	}

	return &job, nil
}

// Ack はジョブを完了にします
func (q *Queue) Ack(ctx context.Context, job domain.UploadJob) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE ingest_jobs SET state = 'completed', last_error = NULL, finished_at = now()
		WHERE id = $1
	`, job.ID)
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	return nil
}

// Nack はジョブの失敗を記録します
// 試行回数が上限未満なら再キューし、上限に達していればデッドレターに落とします
// running行は配布先ワーカーだけが更新するため、読み出しと更新の分離は安全
func (q *Queue) Nack(ctx context.Context, job domain.UploadJob, reason string) error {
	var attempts int
	err := q.pool.QueryRow(ctx, `
		SELECT attempts FROM ingest_jobs WHERE id = $1
	`, job.ID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("job %s not found", job.ID)
		}
		return fmt.Errorf("failed to nack job %s: %w", job.ID, err)
	}

	return q.markState(ctx, job.ID, stateAfterFailure(attempts, q.maxAttempts), reason)
}

const (
	stateQueued = "queued"
	stateDead   = "dead"
)

// stateAfterFailure は失敗したジョブの次の状態を決めます
// attemptsはDequeue時に加算済みの消費試行回数
func stateAfterFailure(attempts, maxAttempts int) string {
	if attempts >= maxAttempts {
		return stateDead
	}
	return stateQueued
}

// markState はジョブを指定状態に遷移させ、失敗理由を記録します
func (q *Queue) markState(ctx context.Context, id uuid.UUID, state, reason string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE ingest_jobs
		SET state = $2,
		    last_error = $3,
		    finished_at = CASE WHEN $2 = 'dead' THEN now() ELSE NULL END
		WHERE id = $1
	`, id, state, reason)
	if err != nil {
		return fmt.Errorf("failed to mark job %s as %s: %w", id, state, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// validateJob はキュー境界でのペイロード検証を行います
func validateJob(job domain.UploadJob) error {
	var missing []string
	if job.ID == uuid.Nil {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(job.Filename) == "" {
		missing = append(missing, "filename")
	}
	if strings.TrimSpace(job.SourcePath) == "" {
		missing = append(missing, "source_path")
	}
	if len(missing) > 0 {
		return &domain.MalformedJobError{Reason: "missing required fields: " + strings.Join(missing, ", ")}
	}
	return nil
}

// インターフェース実装の確認
var _ domain.Queue = (*Queue)(nil)
